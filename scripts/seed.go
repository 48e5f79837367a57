package main

import (
	"context"
	"log"
	"os"

	"github.com/medflow/clinic-workflow/backend/internal/adapters/database"
	"github.com/medflow/clinic-workflow/backend/internal/adapters/events"
	"github.com/medflow/clinic-workflow/backend/internal/application/services"
	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/workflow"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
	"github.com/medflow/clinic-workflow/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	schemaFile := os.Getenv("SCHEMA_FILE")
	if schemaFile == "" {
		schemaFile = "migrations/001_initial_schema.sql"
	}
	schema, err := os.ReadFile(schemaFile)
	if err != nil {
		log.Fatalf("Failed to read schema file %s: %v", schemaFile, err)
	}
	if _, err := pgClient.DB().ExecContext(ctx, string(schema)); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Schema applied")

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				task_updates,
				tasks,
				encounters,
				patients,
				doctors
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
		if _, err := pgClient.DB().ExecContext(ctx,
			`UPDATE workflow_counters SET value = 0 WHERE name = 'encounter_token'`); err != nil {
			log.Fatalf("Failed to reset token counter: %v", err)
		}
	}

	bus := events.NewMemoryEventBus()
	defer bus.Close()

	tokens := database.NewTokenAdapter(pgClient, cfg.Workflow.TokenPrefix, cfg.Workflow.TokenPadding)
	encounters := database.NewEncounterAdapter(pgClient)
	doctors := database.NewDoctorAdapter(pgClient)
	tasks := database.NewTaskAdapter(pgClient)
	machine := workflow.NewMachine()

	intake := services.NewIntakeService(tokens, encounters, doctors, bus, cfg.Workflow.Departments, nil)
	ordering := services.NewOrderingService(encounters, tasks, database.NewTaskUpdateAdapter(pgClient), machine, bus, nil)
	lab := services.NewLabService(tasks, machine, bus, nil)
	pharmacy := services.NewPharmacyService(tasks, machine, bus, nil)

	// 1. Seed doctors across the departments
	doctorNames := map[string][]string{
		"General":     {"Adaeze Okonkwo", "Tunde Bakare"},
		"Dental":      {"Chidi Okafor"},
		"ENT":         {"Amara Nwosu"},
		"Cardiology":  {"Bisi Adeyemi"},
		"Pediatrics":  {"Ngozi Eze"},
		"Orthopedics": {"Femi Alade"},
		"Dermatology": {"Halima Yusuf"},
		"Neurology":   {"Kelechi Obi"},
	}
	for department, names := range doctorNames {
		for _, name := range names {
			if _, err := intake.RegisterDoctor(ctx, name, department); err != nil {
				log.Printf("Failed to seed doctor %s: %v", name, err)
			}
		}
	}
	log.Println("Doctors seeded")

	// 2. Walk one demo visit through the whole flow
	encounter, err := intake.RegisterPatient(ctx, &services.IntakeRequest{
		FullName:   "Ada Obi",
		Age:        34,
		Phone:      "0800000000",
		Department: "General",
	})
	if err != nil {
		log.Fatalf("Failed to register demo patient: %v", err)
	}
	log.Printf("Demo patient registered with token %s", encounter.Token)

	labTask, err := ordering.PlaceOrder(ctx, &services.OrderRequest{
		EncounterID: encounter.ID,
		Type:        "Lab Test",
		Title:       "Full Blood Count",
		AssignedTo:  "lab-bench-1",
	})
	if err != nil {
		log.Fatalf("Failed to place lab order: %v", err)
	}

	pharmacyTask, err := ordering.PlaceOrder(ctx, &services.OrderRequest{
		EncounterID: encounter.ID,
		Type:        "Pharmacy",
		Title:       "Amoxicillin 500mg",
		AssignedTo:  "dispensary",
	})
	if err != nil {
		log.Fatalf("Failed to place pharmacy order: %v", err)
	}

	if _, err := lab.StartProcessing(ctx, labTask.ID); err != nil {
		log.Fatalf("Failed to start lab task: %v", err)
	}
	if _, err := lab.FinalizeResult(ctx, labTask.ID, entities.LabResultNegative, "all values in range"); err != nil {
		log.Fatalf("Failed to finalize lab result: %v", err)
	}

	if _, err := pharmacy.MarkReady(ctx, pharmacyTask.ID); err != nil {
		log.Fatalf("Failed to mark dispense ready: %v", err)
	}

	log.Println("Seeding complete")
}
