package models

// All lists the persisted models in dependency order for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Student{},
		&Plan{},
		&Enrollment{},
		&AccessEvent{},
		&ActivityLog{},
	}
}
