package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"reliaudit/internal/bootstrap/config"
	"reliaudit/internal/bootstrap/database"
	"reliaudit/internal/bootstrap/logging"
	cacheinfra "reliaudit/internal/infrastructure/cache"
	"reliaudit/internal/infrastructure/checksumstore"
	sqliterepo "reliaudit/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "reliaudit/internal/infrastructure/persistence/sqlite/uow"
	"reliaudit/internal/ports"
	"reliaudit/internal/usecase/linelog"
	"reliaudit/internal/usecase/logchecksum"
	"reliaudit/internal/usecase/reliability"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewReliabilityFieldRepository,
			fx.As(new(ports.ReliabilityFieldRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewAuditLogRepository,
			fx.As(new(ports.AuditLogRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
			fx.As(new(ports.PrefixCache)),
		),
	),
	fx.Provide(provideChecksumStore),
	fx.Provide(provideReliabilityService),
	fx.Provide(provideChecksumManager),
	fx.Provide(provideMonitor),
	fx.Provide(linelog.NewVerifier),
	fx.Provide(provideBulkWriter),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideChecksumStore(cfg config.Config, cache ports.PrefixCache) ports.ChecksumStore {
	if cfg.Checksums.Store == config.StoreTOML {
		return checksumstore.NewTOMLStore(cfg.Checksums.Dir)
	}
	return checksumstore.NewKVStore(cache)
}

func provideReliabilityService(cfg config.Config, fields ports.ReliabilityFieldRepository, logs ports.AuditLogRepository, uow ports.UnitOfWork) *reliability.Service {
	return reliability.NewService(fields, logs, uow, reliability.Options{
		DefaultActorService: cfg.Reliability.DefaultService,
	})
}

func provideChecksumManager(cfg config.Config, store ports.ChecksumStore) (*logchecksum.Manager, error) {
	algorithms, err := cfg.Checksums.ParsedAlgorithms()
	if err != nil {
		return nil, err
	}
	return logchecksum.NewManager(logchecksum.Config{
		LogsDir:     cfg.Logs.Dir,
		ChecksumDir: cfg.Checksums.Dir,
		BackupDir:   cfg.Checksums.BackupDir,
		Algorithms:  algorithms,
	}, store), nil
}

func provideMonitor(cfg config.Config, manager *logchecksum.Manager, cache ports.Cache) *logchecksum.Monitor {
	return logchecksum.NewMonitor(manager, cache, cfg.Monitor.Interval)
}

func provideBulkWriter(cfg config.Config) *linelog.Writer {
	return linelog.NewWriter(cfg.Logs.BulkFile)
}
