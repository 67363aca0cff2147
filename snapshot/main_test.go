package snapshot

import (
	"flag"
	"os"
	"testing"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var debugLevel = flag.Int("debuglevel", 0, "debug verbosity level")

func TestMain(m *testing.M) {
	flag.Parse()
	commonlog.Configure(*debugLevel, nil)
	os.Exit(m.Run())
}
