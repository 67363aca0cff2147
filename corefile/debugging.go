package corefile

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("rubycore.corefile")

func logf(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func verbosef(format string, args ...interface{}) {
	log.Debugf(format, args...)
}
