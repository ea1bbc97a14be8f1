package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/config"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/database"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/handler"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/queue"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

// stores is every persistence port the server wires, backed either by
// MySQL or by one shared MemoryStore.
type stores struct {
	bookings  service.BookingStore
	payments  service.PaymentStore
	users     service.UserStore
	directory service.ProviderDirectory
	sequence  service.Sequence
	workflow  service.WorkflowRecorder
	workflows handler.WorkflowReader
	activity  queue.ActivitySink
	accounts  handler.UserAccounts
	tokens    handler.RefreshTokens
	catalog   handler.Catalog

	db *sql.DB
}

func openStores(ctx context.Context, cfg config.Config, mk config.Marketplace) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Printf("store: using in-memory store; data is lost on restart, activities go to logs/activity.log")
		m := repository.NewMemoryStore()
		return &stores{
			bookings: m, payments: m, users: m, directory: m, sequence: m,
			workflow: m, workflows: m, activity: &queue.FileSink{Dir: "."},
			accounts: m, tokens: m, catalog: m,
		}, nil
	}

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		return nil, err
	}
	if mk.MigrateOnStart {
		mctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := database.Migrate(mctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	users := repository.NewUserRepo(db)
	dir := repository.NewDirectoryRepo(db)
	wf := repository.NewWorkflowRepo(db)
	return &stores{
		bookings:  repository.NewBookingRepo(db),
		payments:  repository.NewPaymentRepo(db),
		users:     users,
		directory: dir,
		sequence:  repository.NewSequenceRepo(db),
		workflow:  wf,
		workflows: wf,
		activity:  repository.NewActivityRepo(db),
		accounts:  users,
		tokens:    repository.NewTokenRepo(db),
		catalog:   dir,
		db:        db,
	}, nil
}

func (s *stores) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// seedAdmin creates the ADMIN account named by ADMIN_EMAIL/ADMIN_PASSWORD
// when it does not exist yet. Registration never hands out that role.
func seedAdmin(ctx context.Context, accounts handler.UserAccounts, email, password string, cost int) {
	if email == "" || password == "" {
		return
	}
	_, err := accounts.CreateUser(ctx, email, "Administrator", password, model.RoleAdmin, cost)
	switch {
	case err == nil:
		log.Printf("store: admin account %s created", email)
	case errors.Is(err, repository.ErrEmailExists):
	default:
		log.Printf("store: seed admin: %v", err)
	}
}
