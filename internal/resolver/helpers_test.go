package resolver

import logx "tagwatch/pkg/logx"

func testLogger() logx.Logger { return logx.Nop() }
