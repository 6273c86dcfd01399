package bench

import (
	"context"
	"path/filepath"

	"github.com/matzehuels/batchtower/pkg/config"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// DefaultFileName is the benchmark log written next to the run logs.
const DefaultFileName = "benchmarks.log"

// Open builds the sink selected by cfg. logDir is used for the file sink
// when cfg.Path is empty.
func Open(ctx context.Context, cfg config.Benchmarks, logDir string) (Sink, error) {
	switch cfg.Sink {
	case config.SinkNone:
		return NullSink{}, nil
	case config.SinkFile, "":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(logDir, DefaultFileName)
		}
		s, err := NewFileSink(path)
		if err != nil {
			return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "open benchmark log %s", path)
		}
		return s, nil
	case config.SinkRedis:
		s, err := NewRedisSink(ctx, cfg.RedisURL)
		if err != nil {
			return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "connect benchmark redis")
		}
		return s, nil
	case config.SinkMongo:
		s, err := NewMongoSink(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, bterrors.Wrap(bterrors.ErrCodeConfig, err, "connect benchmark mongo")
		}
		return s, nil
	default:
		return nil, bterrors.New(bterrors.ErrCodeConfig, "unknown benchmark sink %q", cfg.Sink)
	}
}
