package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"larder/internal/config"
	"larder/internal/db"
	"larder/internal/dbctx"
	applog "larder/internal/log"
	"larder/internal/manager"
	"larder/internal/schema"
	"larder/models"
)

var (
	numberPattern   = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	cleanWhitespace = regexp.MustCompile(`\s+`)
)

func main() {
	csvPath := "products.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}

	if err := run(csvPath); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(csvPath string) error {
	if strings.TrimSpace(csvPath) == "" {
		return fmt.Errorf("csv path must not be empty")
	}

	if _, err := os.Stat(csvPath); err != nil {
		return fmt.Errorf("locate csv: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	records, err := readCSV(csvPath)
	if err != nil {
		return fmt.Errorf("read csv: %w", err)
	}

	created, updated, err := importProducts(context.Background(), database, records)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Imported %d products (%d new, %d updated) from %s\n",
		created+updated, created, updated, filepath.Base(csvPath))
	return nil
}

// importProducts upserts one product per record, matched by exact name.
// Each record is written in its own transaction.
func importProducts(ctx context.Context, database *gorm.DB, records []map[string]string) (int, int, error) {
	inspector, err := schema.NewInspector(database)
	if err != nil {
		return 0, 0, err
	}
	registry, err := schema.Build(ctx, inspector, models.Entities()...)
	if err != nil {
		return 0, 0, fmt.Errorf("read constraints: %w", err)
	}
	products, err := manager.New[models.Product](database, registry)
	if err != nil {
		return 0, 0, err
	}

	created, updated := 0, 0
	for idx, record := range records {
		name := normalizeText(record["Name"])
		if name == "" {
			applog.Warn(ctx, "skipping product without name", "record", idx+1)
			continue
		}

		err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			_, isNew, err := products.UpdateOrCreate(dbc, buildFields(record), manager.Fields{"name": name})
			if err != nil {
				return err
			}
			if isNew {
				created++
			} else {
				updated++
			}
			return nil
		})
		if err != nil {
			return created, updated, fmt.Errorf("record %d (%s): %w", idx+1, name, err)
		}
	}
	return created, updated, nil
}

// buildFields maps the nutrient and flag columns of a record. Blank
// cells leave the stored value untouched.
func buildFields(row map[string]string) manager.Fields {
	fields := manager.Fields{}

	for column, field := range map[string]string{
		"Calories":      "calories",
		"Proteins":      "proteins",
		"Fats":          "fats",
		"Carbohydrates": "carbohydrates",
	} {
		if v, ok := parseFirstNumber(row[column]); ok {
			fields[field] = v
		}
	}

	for column, field := range map[string]string{
		"Number": "number",
		"Weight": "weight",
	} {
		if v, ok := parseFirstNumber(row[column]); ok {
			fields[field] = int(v)
		}
	}

	if v, ok := parseFlag(row["Is Dish"]); ok {
		fields["is_dish"] = v
	}
	if image := normalizeValue(row["Image"]); image != "" {
		fields["image"] = image
	}
	if receipt := normalizeText(row["Receipt"]); receipt != "" {
		fields["receipt"] = receipt
	}
	return fields
}

func readCSV(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, errors.New("csv is empty")
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}

		record := make(map[string]string, len(header))
		for idx, key := range header {
			if idx >= len(row) {
				continue
			}
			record[strings.TrimSpace(key)] = strings.TrimSpace(row[idx])
		}
		records = append(records, record)
	}

	return records, nil
}

func normalizeValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "N/A") {
		return ""
	}
	return value
}

func normalizeText(value string) string {
	value = normalizeValue(value)
	if value == "" {
		return value
	}
	return strings.TrimSpace(cleanWhitespace.ReplaceAllString(value, " "))
}

func parseFirstNumber(value string) (float64, bool) {
	value = normalizeValue(value)
	if value == "" {
		return 0, false
	}

	match := numberPattern.FindString(strings.ReplaceAll(value, ",", "."))
	if match == "" {
		return 0, false
	}

	parsed, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseFlag(value string) (bool, bool) {
	switch strings.ToLower(normalizeValue(value)) {
	case "yes", "y", "true", "1", "dish":
		return true, true
	case "no", "n", "false", "0":
		return false, true
	default:
		return false, false
	}
}
