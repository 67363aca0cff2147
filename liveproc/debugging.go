package liveproc

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("rubycore.liveproc")

func printf(format string, args ...interface{}) {
	log.Noticef(format, args...)
}

func logf(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func verbosef(format string, args ...interface{}) {
	log.Debugf(format, args...)
}
