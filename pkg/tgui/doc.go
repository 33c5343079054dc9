// Package tgui provides small helpers for Telegram rich text:
//   - H, a string type for HTML that is already safe for ParseMode="HTML"
//   - Escaping builders (bold, code, links) that never let raw input through
//   - Truncation that respects Telegram's message size limit
package tgui
