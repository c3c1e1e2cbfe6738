package state

import (
	cosmoslog "cosmossdk.io/log"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// treeLogger hands the node logger to iavl, which expects the cosmos-sdk
// logger interface.
type treeLogger struct {
	cmtlog.Logger
}

func newTreeLogger(lg cmtlog.Logger) cosmoslog.Logger {
	return treeLogger{Logger: lg.With("store", "iavl")}
}

func (l treeLogger) With(keyVals ...any) cosmoslog.Logger {
	return treeLogger{Logger: l.Logger.With(keyVals...)}
}

func (l treeLogger) Impl() any {
	return l.Logger
}
