package db

import (
	"context"
	"fmt"
)

func autoMigrateModels() []any {
	return []any{
		&Event{},
	}
}

func (p *Pool) autoMigrate(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}
	return nil
}
