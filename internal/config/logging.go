package config

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// InitLog configures the standard logger to write to out
func InitLog(cfg LogConfig, out io.Writer) error {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		return errors.Errorf("invalid log format %q", cfg.Format)
	}

	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrap(err, "unrecognized log level")
	}
	log.SetLevel(lvl)
	log.SetOutput(out)
	return nil
}
