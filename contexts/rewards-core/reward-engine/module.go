package rewardengine

import (
	"log/slog"
	"time"

	httpadapter "jubilee/contexts/rewards-core/reward-engine/adapters/http"
	"jubilee/contexts/rewards-core/reward-engine/adapters/memory"
	"jubilee/contexts/rewards-core/reward-engine/application/commands"
	"jubilee/contexts/rewards-core/reward-engine/application/queries"
	"jubilee/contexts/rewards-core/reward-engine/application/workers"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

type Module struct {
	Handler      httpadapter.Handler
	Processor    workers.Processor
	ProcessorJob workers.ProcessorJob
	Store        *memory.Store
}

type Dependencies struct {
	Repository ports.DistributionRepository
	Snapshots  ports.SnapshotReader
	Gate       ports.PriceGate
	Executor   ports.TransferExecutor
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Outbox     ports.OutboxWriter
	Cooldown   time.Duration
	LeaseTTL   time.Duration
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	commandUseCase := commands.UseCase{
		Repository: deps.Repository,
		Snapshots:  deps.Snapshots,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Outbox:     deps.Outbox,
		Logger:     deps.Logger,
	}
	queryUseCase := queries.UseCase{
		Repository: deps.Repository,
		Logger:     deps.Logger,
	}
	processor := workers.Processor{
		Repository: deps.Repository,
		Gate:       deps.Gate,
		Executor:   deps.Executor,
		Outbox:     deps.Outbox,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Cooldown:   deps.Cooldown,
		LeaseTTL:   deps.LeaseTTL,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Commands:  commandUseCase,
			Queries:   queryUseCase,
			Processor: processor,
			Logger:    deps.Logger,
		},
		Processor: processor,
		ProcessorJob: workers.ProcessorJob{
			Repository: deps.Repository,
			Processor:  processor,
			Logger:     deps.Logger,
		},
	}
}

func NewInMemoryModule(
	gate ports.PriceGate,
	executor ports.TransferExecutor,
	seed []entities.Distribution,
	logger *slog.Logger,
) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Repository: store,
		Snapshots:  store,
		Gate:       gate,
		Executor:   executor,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
