package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/agnihq/rls"
	"github.com/agnihq/rls/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rls-config - Configuration tool for rls rule sets")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rls-config convert <input> <output>   - Convert between formats")
	fmt.Println("  rls-config validate <file>            - Validate a rule configuration")
	fmt.Println("  rls-config stats <file>               - Show configuration statistics")
	fmt.Println("  rls-config apply <file> <sqlite-db>   - Seed rules into a SQLite store")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func loadConfig(path string) (*rls.Config, error) {
	return rls.NewConfigLoader().LoadFile(path)
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: rls-config convert <input> <output>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := rls.NewConfigLoader().SaveFile(cfg, os.Args[3]); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], os.Args[3])
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rls-config validate <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration is valid")
	fmt.Printf("  Version:     %d\n", cfg.Version)
	fmt.Printf("  Rules:       %d\n", len(cfg.Rules))
	fmt.Printf("  Memberships: %d\n", len(cfg.Memberships))
	fmt.Printf("  Tenants:     %d\n", len(cfg.Tenants()))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rls-config stats <file>")
		os.Exit(1)
	}
	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat, err := os.Stat(filename); err == nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	allowCount, denyCount, inactiveCount := 0, 0, 0
	byObjectType := make(map[string]int)
	for _, r := range cfg.Rules {
		if r.Effect == rls.EffectAllow {
			allowCount++
		} else {
			denyCount++
		}
		if !r.IsActive {
			inactiveCount++
		}
		byObjectType[r.ObjectType]++
	}

	fmt.Println("Rules:")
	fmt.Printf("  Total:    %d\n", len(cfg.Rules))
	fmt.Printf("  Allow:    %d\n", allowCount)
	fmt.Printf("  Deny:     %d\n", denyCount)
	fmt.Printf("  Inactive: %d\n", inactiveCount)
	fmt.Println()
	fmt.Println("Object types:")
	for objectType, count := range byObjectType {
		fmt.Printf("  %-20s %d\n", objectType, count)
	}
	fmt.Println()
	fmt.Printf("Tenants:     %d\n", len(cfg.Tenants()))
	fmt.Printf("Memberships: %d\n", len(cfg.Memberships))
}

func handleApply() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: rls-config apply <file> <sqlite-db>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	sqlDB, err := sql.Open("sqlite", os.Args[3])
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	db := squealx.NewDb(sqlDB, "sqlite", "rls")

	if err := stores.Migrate(db); err != nil {
		fmt.Printf("Error migrating: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ruleStore := stores.NewSQLRuleStore(db)
	membershipStore := stores.NewSQLRoleMembershipStore(db)
	if err := cfg.Seed(ctx, ruleStore, membershipStore); err != nil {
		fmt.Printf("Error seeding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Applied %d rules and %d memberships to %s\n", len(cfg.Rules), len(cfg.Memberships), os.Args[3])
}
