package storage

import logx "pushrelay/pkg/logx"

func nopLog() logx.Logger { return logx.Nop() }
