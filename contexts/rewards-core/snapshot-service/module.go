package snapshotservice

import (
	"log/slog"

	httpadapter "jubilee/contexts/rewards-core/snapshot-service/adapters/http"
	"jubilee/contexts/rewards-core/snapshot-service/adapters/memory"
	"jubilee/contexts/rewards-core/snapshot-service/application/commands"
	"jubilee/contexts/rewards-core/snapshot-service/application/queries"
	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	"jubilee/contexts/rewards-core/snapshot-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Repository ports.Repository
	Holders    ports.HolderIndex
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Outbox     ports.OutboxWriter
	PageSize   int
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	commandUseCase := commands.UseCase{
		Repository: deps.Repository,
		Holders:    deps.Holders,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Outbox:     deps.Outbox,
		PageSize:   deps.PageSize,
		Logger:     deps.Logger,
	}
	queryUseCase := queries.UseCase{
		Repository: deps.Repository,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Commands: commandUseCase,
			Queries:  queryUseCase,
			Logger:   deps.Logger,
		},
	}
}

func NewInMemoryModule(holders ports.HolderIndex, seed []entities.Snapshot, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Repository: store,
		Holders:    holders,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
