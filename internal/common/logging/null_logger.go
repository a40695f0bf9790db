package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NullLogger swallows everything below panic level. Tests hand it to components whose log output they do not
// assert on, so a run with many workers stays quiet.
var NullLogger = &logrus.Logger{
	Out:       io.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}
