package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/haivivi/geminilive/pkg/cli"
	"github.com/haivivi/geminilive/pkg/geminilive"
	"github.com/haivivi/geminilive/pkg/recorder"
	"github.com/haivivi/geminilive/pkg/tokencache"
)

// platformFor maps a context to the platform it connects to.
func platformFor(ctx *cli.Context) geminilive.Platform {
	if ctx.Platform == cli.PlatformVertexAI {
		return geminilive.VertexAI{Project: ctx.Project, Location: ctx.Location, BaseURL: ctx.BaseURL}
	}
	return geminilive.GoogleAI{BaseURL: ctx.BaseURL}
}

// newClient creates a client from the context configuration. The returned
// cleanup releases the token cache.
func newClient(bg context.Context, ctx *cli.Context, tokenCache string) (*geminilive.Client, func(), error) {
	if err := ctx.Validate(); err != nil {
		return nil, nil, err
	}
	opts := []geminilive.Option{
		geminilive.WithPlatform(platformFor(ctx)),
		geminilive.WithLogger(slog.Default()),
	}
	if d := ctx.TurnIdleTimeout.Duration(); d > 0 {
		opts = append(opts, geminilive.WithTurnIdleTimeout(d))
	}

	cleanup := func() {}
	if ctx.Platform == cli.PlatformVertexAI {
		cache, closeCache, err := openTokenCache(tokenCache)
		if err != nil {
			return nil, nil, err
		}
		auth, err := geminilive.NewGoogleAuthenticator(bg, cache)
		if err != nil {
			closeCache()
			return nil, nil, err
		}
		auth.Key = "adc:" + ctx.Project
		opts = append(opts, geminilive.WithAuthenticator(auth))
		cleanup = closeCache
	} else {
		key := ctx.APIKey
		if key == "" {
			key = envAPIKey()
		}
		if key == "" {
			return nil, nil, fmt.Errorf("context %q has no api key", ctx.Name)
		}
		opts = append(opts, geminilive.WithAPIKey(key))
	}
	return geminilive.NewClient(opts...), cleanup, nil
}

// openTokenCache opens the cache named by target: "" for an on-disk Badger
// store under ~/.giztoy/geminilive/cache, "memory", or a redis:// URL.
func openTokenCache(target string) (tokencache.Store, func(), error) {
	switch {
	case target == "memory":
		return tokencache.NewMemory(), func() {}, nil
	case strings.HasPrefix(target, "redis://"), strings.HasPrefix(target, "rediss://"):
		opt, err := redis.ParseURL(target)
		if err != nil {
			return nil, nil, fmt.Errorf("token cache: %w", err)
		}
		rdb := redis.NewClient(opt)
		return tokencache.NewRedis(rdb, ""), func() { rdb.Close() }, nil
	case target == "":
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, nil, err
		}
		if err := paths.EnsureCacheDir(); err != nil {
			return nil, nil, err
		}
		target = filepath.Join(paths.CacheDir(), "tokens")
		fallthrough
	default:
		db, err := tokencache.NewBadger(tokencache.BadgerOptions{Dir: target})
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}
}

// newRecorder creates a recorder for target: a local directory or
// s3://bucket/prefix.
func newRecorder(target string, sampleRate int, metadata bool) (*recorder.Recorder, error) {
	var sink recorder.Sink
	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("record: missing bucket in %q", target)
		}
		sink = recorder.NewS3Sink(newS3Client(), bucket, strings.TrimSuffix(prefix, "/"))
	} else {
		local, err := recorder.NewLocalSink(target)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		sink = local
	}
	return recorder.New(sink,
		recorder.WithSampleRate(sampleRate),
		recorder.WithMetadata(metadata),
		recorder.WithLogger(slog.Default()),
	), nil
}

// newS3Client builds an S3 client from the standard AWS environment
// variables. AWS_ENDPOINT_URL_S3 selects an S3-compatible store (MinIO, R2)
// with path-style addressing.
func newS3Client() *s3.Client {
	region := firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	if region == "" {
		region = "us-east-1"
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})
	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if ep := firstEnv("AWS_ENDPOINT_URL_S3", "AWS_ENDPOINT_URL"); ep != "" {
		opts.BaseEndpoint = aws.String(ep)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
