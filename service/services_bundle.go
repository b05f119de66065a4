package service

// ServicesBundle groups initialized service instances to pass between
// application components (app -> api, telegram, cronjob) without creating
// import cycles.
type ServicesBundle struct {
	Store     *StoreService
	Lifecycle *LifecycleService
	Logs      *LogService
}

func NewServicesBundle(store *StoreService, deps HostDeps) *ServicesBundle {
	return &ServicesBundle{
		Store:     store,
		Lifecycle: NewLifecycleService(store, deps),
		Logs:      NewLogService(deps.Exec),
	}
}
