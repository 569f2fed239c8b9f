package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// SettingRecord is the persisted row of one named experiment. Structured
// fields are JSON columns; nullable columns mean "not yet chosen".
type SettingRecord struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	SaveRootDir *string    `json:"save_root_dir"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Setting tlc.Setting `json:"setting"`
}

// marshalNullable JSON-encodes v unless it is nil, mapping nil to SQL NULL.
func marshalNullable(v interface{}) (sql.NullString, error) {
	switch x := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case *tlc.VideoMeta:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *tlc.DaqMeta:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *tlc.Area:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *tlc.InterpMethod:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *tlc.FilterMethod:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *tlc.IterMethod:
		if x == nil {
			return sql.NullString{}, nil
		}
	case []tlc.Thermocouple:
		if x == nil {
			return sql.NullString{}, nil
		}
	case []float64:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, dst interface{}) error {
	if !s.Valid {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullableFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// SaveSetting inserts or updates the row for s.Name and returns its id.
func (db *DB) SaveSetting(s *tlc.Setting) (int64, error) {
	if s.Name == "" {
		return 0, fmt.Errorf("setting has no name")
	}
	videoJSON, err := marshalNullable(s.VideoMeta)
	if err != nil {
		return 0, fmt.Errorf("marshal video metadata: %w", err)
	}
	daqJSON, err := marshalNullable(s.DaqMeta)
	if err != nil {
		return 0, fmt.Errorf("marshal daq metadata: %w", err)
	}
	areaJSON, err := marshalNullable(s.Area)
	if err != nil {
		return 0, fmt.Errorf("marshal area: %w", err)
	}
	tcJSON, err := marshalNullable(s.Thermocouples)
	if err != nil {
		return 0, fmt.Errorf("marshal thermocouples: %w", err)
	}
	regJSON, err := marshalNullable(s.TemperatureRegulators)
	if err != nil {
		return 0, fmt.Errorf("marshal regulators: %w", err)
	}
	interpJSON, err := marshalNullable(s.InterpMethod)
	if err != nil {
		return 0, fmt.Errorf("marshal interpolation method: %w", err)
	}
	filterJSON, err := marshalNullable(s.FilterMethod)
	if err != nil {
		return 0, fmt.Errorf("marshal filter method: %w", err)
	}
	iterJSON, err := marshalNullable(s.IterMethod)
	if err != nil {
		return 0, fmt.Errorf("marshal iteration method: %w", err)
	}

	now := time.Now().UnixMilli()
	query := `
		INSERT INTO setting (
			name, save_root_dir, video_metadata, daq_metadata,
			start_frame, start_row, area, thermocouples, temperature_regulators,
			interpolation_method, filter_method, iteration_method,
			peak_temperature, solid_thermal_conductivity, solid_thermal_diffusivity,
			characteristic_length, air_thermal_conductivity,
			completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			save_root_dir = excluded.save_root_dir,
			video_metadata = excluded.video_metadata,
			daq_metadata = excluded.daq_metadata,
			start_frame = excluded.start_frame,
			start_row = excluded.start_row,
			area = excluded.area,
			thermocouples = excluded.thermocouples,
			temperature_regulators = excluded.temperature_regulators,
			interpolation_method = excluded.interpolation_method,
			filter_method = excluded.filter_method,
			iteration_method = excluded.iteration_method,
			peak_temperature = excluded.peak_temperature,
			solid_thermal_conductivity = excluded.solid_thermal_conductivity,
			solid_thermal_diffusivity = excluded.solid_thermal_diffusivity,
			characteristic_length = excluded.characteristic_length,
			air_thermal_conductivity = excluded.air_thermal_conductivity,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`
	saveRoot := sql.NullString{String: s.SaveRootDir, Valid: s.SaveRootDir != ""}
	_, err = db.Exec(query,
		s.Name, saveRoot, videoJSON, daqJSON,
		nullableInt(s.StartFrame), nullableInt(s.StartRow),
		areaJSON, tcJSON, regJSON,
		interpJSON, filterJSON, iterJSON,
		nullableFloat(s.Physical.PeakTemperature),
		nullableFloat(s.Physical.SolidThermalConductivity),
		nullableFloat(s.Physical.SolidThermalDiffusivity),
		nullableFloat(s.Physical.CharacteristicLength),
		nullableFloat(s.Physical.AirThermalConductivity),
		nullableMillis(s.CompletedAt), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save setting %q: %w", s.Name, err)
	}

	var id int64
	if err := db.QueryRow(`SELECT id FROM setting WHERE name = ?`, s.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back setting id: %w", err)
	}
	return id, nil
}

const settingColumns = `
	id, name, save_root_dir, video_metadata, daq_metadata,
	start_frame, start_row, area, thermocouples, temperature_regulators,
	interpolation_method, filter_method, iteration_method,
	peak_temperature, solid_thermal_conductivity, solid_thermal_diffusivity,
	characteristic_length, air_thermal_conductivity,
	completed_at, created_at, updated_at
`

func scanSetting(row interface{ Scan(...interface{}) error }) (*SettingRecord, error) {
	var (
		rec                                                settingRow
		videoJSON, daqJSON, areaJSON, tcJSON, regJSON      sql.NullString
		interpJSON, filterJSON, iterJSON, saveRoot         sql.NullString
		startFrame, startRow, completedAt                  sql.NullInt64
		peakTemp, solidK, solidA, charLen, airK            sql.NullFloat64
		createdAt, updatedAt                               int64
	)
	err := row.Scan(
		&rec.id, &rec.name, &saveRoot, &videoJSON, &daqJSON,
		&startFrame, &startRow, &areaJSON, &tcJSON, &regJSON,
		&interpJSON, &filterJSON, &iterJSON,
		&peakTemp, &solidK, &solidA, &charLen, &airK,
		&completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	out := &SettingRecord{
		ID:        rec.id,
		Name:      rec.name,
		CreatedAt: time.UnixMilli(createdAt),
		UpdatedAt: time.UnixMilli(updatedAt),
	}
	s := &out.Setting
	s.Name = rec.name
	if saveRoot.Valid {
		out.SaveRootDir = &saveRoot.String
		s.SaveRootDir = saveRoot.String
	}
	if videoJSON.Valid {
		s.VideoMeta = &tlc.VideoMeta{}
	}
	if err := unmarshalNullable(videoJSON, s.VideoMeta); err != nil {
		return nil, fmt.Errorf("unmarshal video metadata: %w", err)
	}
	if daqJSON.Valid {
		s.DaqMeta = &tlc.DaqMeta{}
	}
	if err := unmarshalNullable(daqJSON, s.DaqMeta); err != nil {
		return nil, fmt.Errorf("unmarshal daq metadata: %w", err)
	}
	if areaJSON.Valid {
		s.Area = &tlc.Area{}
	}
	if err := unmarshalNullable(areaJSON, s.Area); err != nil {
		return nil, fmt.Errorf("unmarshal area: %w", err)
	}
	if err := unmarshalNullable(tcJSON, &s.Thermocouples); err != nil {
		return nil, fmt.Errorf("unmarshal thermocouples: %w", err)
	}
	if err := unmarshalNullable(regJSON, &s.TemperatureRegulators); err != nil {
		return nil, fmt.Errorf("unmarshal regulators: %w", err)
	}
	if interpJSON.Valid {
		s.InterpMethod = &tlc.InterpMethod{}
	}
	if err := unmarshalNullable(interpJSON, s.InterpMethod); err != nil {
		return nil, fmt.Errorf("unmarshal interpolation method: %w", err)
	}
	if filterJSON.Valid {
		s.FilterMethod = &tlc.FilterMethod{}
	}
	if err := unmarshalNullable(filterJSON, s.FilterMethod); err != nil {
		return nil, fmt.Errorf("unmarshal filter method: %w", err)
	}
	if iterJSON.Valid {
		s.IterMethod = &tlc.IterMethod{}
	}
	if err := unmarshalNullable(iterJSON, s.IterMethod); err != nil {
		return nil, fmt.Errorf("unmarshal iteration method: %w", err)
	}
	if startFrame.Valid {
		v := int(startFrame.Int64)
		s.StartFrame = &v
	}
	if startRow.Valid {
		v := int(startRow.Int64)
		s.StartRow = &v
	}
	if peakTemp.Valid {
		s.Physical.PeakTemperature = &peakTemp.Float64
	}
	if solidK.Valid {
		s.Physical.SolidThermalConductivity = &solidK.Float64
	}
	if solidA.Valid {
		s.Physical.SolidThermalDiffusivity = &solidA.Float64
	}
	if charLen.Valid {
		s.Physical.CharacteristicLength = &charLen.Float64
	}
	if airK.Valid {
		s.Physical.AirThermalConductivity = &airK.Float64
	}
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		out.CompletedAt = &t
		s.CompletedAt = &t
	}
	return out, nil
}

type settingRow struct {
	id   int64
	name string
}

// GetSettingByName retrieves one experiment by its unique label.
func (db *DB) GetSettingByName(name string) (*SettingRecord, error) {
	query := `SELECT ` + settingColumns + ` FROM setting WHERE name = ?`
	rec, err := scanSetting(db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("setting %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %q: %w", name, err)
	}
	return rec, nil
}

// ListSettings returns all experiments ordered by name.
func (db *DB) ListSettings() ([]*SettingRecord, error) {
	query := `SELECT ` + settingColumns + ` FROM setting ORDER BY name ASC`
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var out []*SettingRecord
	for rows.Next() {
		rec, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return out, nil
}

// DeleteSetting removes an experiment by name.
func (db *DB) DeleteSetting(name string) error {
	res, err := db.Exec(`DELETE FROM setting WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("setting %q not found", name)
	}
	return nil
}

// Store adapts DB to the core's SettingStore collaborator.
type Store struct {
	DB *DB
}

// Save upserts the setting row.
func (s Store) Save(setting *tlc.Setting) error {
	_, err := s.DB.SaveSetting(setting)
	return err
}
