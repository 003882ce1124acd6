package log

import "sort"

// Field names shared by every component.
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldID        = "id"
	FieldWeekStart = "week_start"
	FieldCategory  = "category"
	FieldAmount    = "amount"
	FieldYear      = "year"
	FieldMonth     = "month"
	FieldTables    = "tables"
	FieldCreated   = "created"
)

const (
	ComponentApp        = "app"
	ComponentStorage    = "storage"
	ComponentAggregator = "aggregator"
	ComponentReconciler = "reconciler"
	ComponentRollover   = "rollover"
	ComponentNotify     = "notify"
	ComponentAMQP       = "amqp"
	ComponentCache      = "cache"
	ComponentCLI        = "cli"
)

const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpRollover = "rollover"
	OpPublish  = "publish"
	OpMigrate  = "migrate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields collects structured fields before a log call.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithWeek(weekStart string) LogFields {
	f[FieldWeekStart] = weekStart
	return f
}

func (f LogFields) WithTransaction(id int64, weekStart, category, amount string) LogFields {
	f[FieldID] = id
	f[FieldWeekStart] = weekStart
	f[FieldCategory] = category
	f[FieldAmount] = amount
	return f
}

func (f LogFields) WithDuration(ms int64) LogFields {
	f[FieldDuration] = ms
	return f
}

// Args flattens the fields into key/value pairs, sorted by key.
func (f LogFields) Args() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, f[k])
	}
	return args
}
