package models

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gen"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

/*
Schema tooling, run from main behind environment flags:

  GENERATE_MODELS=true         generate typed query helpers for Node into ./generated
  GENERATE_COLUMN_REPORT=true  list columns of the nodes table that Node does not map

Both expect the schema to be migrated already (database.Migrate).
*/

// GenerateModels writes gorm/gen query helpers for every persisted model.
func GenerateModels(db *gorm.DB, outPath string) error {
	if outPath == "" {
		outPath = "./generated"
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:           outPath,
		Mode:              gen.WithDefaultQuery | gen.WithQueryInterface,
		FieldNullable:     true,
		FieldCoverable:    true,
		FieldWithIndexTag: true,
		FieldWithTypeTag:  true,
	})
	g.UseDB(db)
	g.ApplyBasic(Node{})
	g.Execute()

	log.Info().Str("outPath", outPath).Msg("query helpers generated")
	return nil
}

// ColumnMismatch lists database columns of a table that its model doesn't map.
type ColumnMismatch struct {
	Table   string
	Missing []string
}

// GenerateColumnMismatchReport compares the live nodes table against Node.
func GenerateColumnMismatchReport(db *gorm.DB) ([]ColumnMismatch, error) {
	models := map[string]interface{}{
		Node{}.TableName(): Node{},
	}

	var report []ColumnMismatch
	for table, model := range models {
		columns, err := tableColumns(db, table)
		if err != nil {
			return nil, err
		}
		missing := findColumnMismatches(columns, modelColumns(model))
		if len(missing) > 0 {
			log.Warn().Str("table", table).Strs("columns", missing).Msg("columns not mapped by model")
		} else {
			log.Info().Str("table", table).Msg("all columns are mapped")
		}
		report = append(report, ColumnMismatch{Table: table, Missing: missing})
	}
	return report, nil
}

func tableColumns(db *gorm.DB, table string) ([]string, error) {
	var columns []string
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = ?
		AND table_schema = CURRENT_SCHEMA()
		ORDER BY ordinal_position
	`
	if err := db.Raw(query, table).Scan(&columns).Error; err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return columns, nil
}

// modelColumns derives column names with gorm's naming strategy, honouring
// explicit column: tags.
func modelColumns(model interface{}) []string {
	naming := schema.NamingStrategy{}
	t := reflect.TypeOf(model)

	var fields []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			continue
		}
		gormTag := field.Tag.Get("gorm")
		if gormTag == "-" {
			continue
		}
		if col := columnFromGormTag(gormTag); col != "" {
			fields = append(fields, col)
			continue
		}
		fields = append(fields, naming.ColumnName("", field.Name))
	}
	return fields
}

func columnFromGormTag(gormTag string) string {
	for _, part := range strings.Split(gormTag, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "column:") {
			return strings.TrimPrefix(part, "column:")
		}
	}
	return ""
}

func findColumnMismatches(dbColumns, modelFields []string) []string {
	known := make(map[string]bool, len(modelFields))
	for _, field := range modelFields {
		known[field] = true
	}

	var mismatches []string
	for _, col := range dbColumns {
		if !known[col] {
			mismatches = append(mismatches, col)
		}
	}
	return mismatches
}
