// Package config loads the YAML documents that define periods, schedules,
// and the orchestrator daemon's own runtime settings, following the
// teacher's Config-struct-plus-Init loading pattern. Nothing here talks to
// the durable store directly: callers take the parsed, validated records
// and feed them to manager.Manager themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/recur"
	"github.com/cuemby/instance-scheduler/pkg/schedulerr"
	"github.com/cuemby/instance-scheduler/pkg/types"
	"gopkg.in/yaml.v3"
)

// PeriodDoc is one period's on-disk YAML shape.
type PeriodDoc struct {
	Name      string `yaml:"name"`
	BeginTime string `yaml:"begintime,omitempty"`
	EndTime   string `yaml:"endtime,omitempty"`
	Weekdays  string `yaml:"weekdays,omitempty"`
	Monthdays string `yaml:"monthdays,omitempty"`
	Months    string `yaml:"months,omitempty"`
}

// ScheduleDoc is one schedule's on-disk YAML shape. Periods is a list of
// "period-name" or "period-name@size" references, matching §6's
// `period-name[@size]` grammar.
type ScheduleDoc struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description,omitempty"`
	Periods          []string `yaml:"periods"`
	Timezone         string   `yaml:"timezone,omitempty"`
	OverrideStatus   string   `yaml:"override_status,omitempty"`
	StopNewInstances *bool    `yaml:"stop_new_instances,omitempty"`
	UseMaintWindow   *bool    `yaml:"use_maintenance_window,omitempty"`
	Enforced         bool     `yaml:"enforced,omitempty"`
	Hibernate        bool     `yaml:"hibernate,omitempty"`
	RetainRunning    bool     `yaml:"retain_running,omitempty"`
}

// Document is the top-level shape of a schedule/period YAML file: any
// number of periods and schedules in one document, so an operator can keep
// a whole environment's configuration in a single file or split it freely.
type Document struct {
	Periods   []PeriodDoc   `yaml:"periods"`
	Schedules []ScheduleDoc `yaml:"schedules"`
}

// LoadDocument reads and parses one YAML file into a Document. It does not
// validate period/schedule semantics; call Periods()/Schedules() for that.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schedulerr.Wrapf(schedulerr.KindParse, "parse %s: %v", path, err)
	}
	return &doc, nil
}

// Periods validates and converts every period in the document, returning
// one error per invalid entry alongside the successfully converted ones
// rather than aborting on the first failure, matching §7's policy of
// recovering locally from bad config entries.
func (d *Document) Periods() ([]types.Period, []error) {
	var out []types.Period
	var errs []error
	for _, pd := range d.Periods {
		p, err := convertPeriod(pd)
		if err != nil {
			errs = append(errs, fmt.Errorf("period %q: %w", pd.Name, err))
			continue
		}
		out = append(out, p)
	}
	return out, errs
}

// Schedules validates and converts every schedule in the document. Period
// references are not checked for existence here; that is a cross-document
// concern left to the caller once both period and schedule lists are in
// hand.
func (d *Document) Schedules() ([]types.Schedule, []error) {
	var out []types.Schedule
	var errs []error
	for _, sd := range d.Schedules {
		s, err := convertSchedule(sd)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", sd.Name, err))
			continue
		}
		out = append(out, s)
	}
	return out, errs
}

func convertPeriod(pd PeriodDoc) (types.Period, error) {
	if pd.Name == "" {
		return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: name is required"))
	}

	p := types.Period{Name: pd.Name}

	if pd.BeginTime != "" {
		wc, err := parseWallClock(pd.BeginTime)
		if err != nil {
			return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: begintime: %w", err))
		}
		p.BeginTime = &wc
	}
	if pd.EndTime != "" {
		wc, err := parseWallClock(pd.EndTime)
		if err != nil {
			return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: endtime: %w", err))
		}
		p.EndTime = &wc
	}
	if p.BeginTime != nil && p.EndTime != nil && !p.BeginTime.Before(*p.EndTime) {
		return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: begintime must be before endtime"))
	}

	months, err := recur.ParseField(recur.FieldMonth, pd.Months)
	if err != nil {
		return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: months: %w", err))
	}
	p.Months = months

	monthdays, err := recur.ParseField(recur.FieldMonthday, pd.Monthdays)
	if err != nil {
		return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: monthdays: %w", err))
	}
	p.Monthdays = monthdays

	weekdays, err := recur.ParseField(recur.FieldWeekday, pd.Weekdays)
	if err != nil {
		return types.Period{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid period definition: weekdays: %w", err))
	}
	p.Weekdays = weekdays

	return p, nil
}

func convertSchedule(sd ScheduleDoc) (types.Schedule, error) {
	if sd.Name == "" {
		return types.Schedule{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid schedule definition: name is required"))
	}

	s := types.DefaultSchedule(sd.Name)
	s.Description = sd.Description
	s.Timezone = sd.Timezone
	s.Enforced = sd.Enforced
	s.Hibernate = sd.Hibernate
	s.RetainRunning = sd.RetainRunning
	if sd.StopNewInstances != nil {
		s.StopNewInstances = *sd.StopNewInstances
	}
	if sd.UseMaintWindow != nil {
		s.UseMaintWindow = *sd.UseMaintWindow
	}

	for _, ref := range sd.Periods {
		r, err := parsePeriodRef(ref)
		if err != nil {
			return types.Schedule{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid schedule definition: %w", err))
		}
		s.Periods = append(s.Periods, r)
	}

	if sd.OverrideStatus != "" {
		switch types.OverrideStatus(sd.OverrideStatus) {
		case types.OverrideRunning:
			v := types.OverrideRunning
			s.Override = &v
		case types.OverrideStopped:
			v := types.OverrideStopped
			s.Override = &v
		default:
			return types.Schedule{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid schedule definition: override_status %q must be running or stopped", sd.OverrideStatus))
		}
	}

	if len(s.Periods) == 0 && s.Override == nil {
		return types.Schedule{}, schedulerr.Wrap(schedulerr.KindValidation, fmt.Errorf("invalid schedule definition: at least one period or an override_status is required"))
	}

	return s, nil
}

// parsePeriodRef splits "period-name" or "period-name@size" into a
// types.PeriodRef.
func parsePeriodRef(ref string) (types.PeriodRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.PeriodRef{}, fmt.Errorf("empty period reference")
	}
	name, size, found := strings.Cut(ref, "@")
	if found && size == "" {
		return types.PeriodRef{}, fmt.Errorf("period reference %q: size after '@' must not be empty", ref)
	}
	return types.PeriodRef{PeriodName: strings.TrimSpace(name), Size: strings.TrimSpace(size)}, nil
}

// parseWallClock parses a zero-padded 24-hour "HH:MM" string.
func parseWallClock(s string) (types.WallClock, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return types.WallClock{}, fmt.Errorf("%q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return types.WallClock{}, fmt.Errorf("%q: hour must be 00-23", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return types.WallClock{}, fmt.Errorf("%q: minute must be 00-59", s)
	}
	return types.WallClock{Hour: hour, Minute: minute}, nil
}

// Daemon holds the orchestrator's own runtime settings: storage location,
// cluster networking, dispatch cadence, and the tag the registrar watches
// to discover in-scope resources.
type Daemon struct {
	DataDir            string        `yaml:"data_dir"`
	BindAddr           string        `yaml:"bind_addr"`
	APIAddr            string        `yaml:"api_addr"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	TargetBudget       time.Duration `yaml:"target_budget"`
	DispatchPoolSize   int           `yaml:"dispatch_pool_size"`
	DispatchSizeCeiling int          `yaml:"dispatch_size_ceiling"`
	ScheduleTagKey     string        `yaml:"schedule_tag_key"`
	MetricsEnabled     bool          `yaml:"metrics_enabled"`
	EventsEnabled      bool          `yaml:"events_enabled"`
}

// DefaultDaemon returns the conservative defaults used when no daemon
// config file is supplied.
func DefaultDaemon() Daemon {
	return Daemon{
		DataDir:            "/var/lib/scheduler",
		BindAddr:           "127.0.0.1:8300",
		APIAddr:            "127.0.0.1:8080",
		PollInterval:       5 * time.Minute,
		TargetBudget:       4 * time.Minute,
		DispatchPoolSize:   8,
		DispatchSizeCeiling: 1000,
		ScheduleTagKey:     "Schedule",
		MetricsEnabled:     true,
		EventsEnabled:      true,
	}
}

// LoadDaemon reads a daemon config file, falling back to DefaultDaemon for
// any field the file leaves zero-valued.
func LoadDaemon(path string) (Daemon, error) {
	cfg := DefaultDaemon()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Daemon{}, fmt.Errorf("read %s: %w", path, err)
	}

	var overlay daemonOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Daemon{}, schedulerr.Wrapf(schedulerr.KindParse, "parse %s: %v", path, err)
	}

	if overlay.DataDir != "" {
		cfg.DataDir = overlay.DataDir
	}
	if overlay.BindAddr != "" {
		cfg.BindAddr = overlay.BindAddr
	}
	if overlay.APIAddr != "" {
		cfg.APIAddr = overlay.APIAddr
	}
	if overlay.PollInterval != 0 {
		cfg.PollInterval = overlay.PollInterval
	}
	if overlay.TargetBudget != 0 {
		cfg.TargetBudget = overlay.TargetBudget
	}
	if overlay.DispatchPoolSize != 0 {
		cfg.DispatchPoolSize = overlay.DispatchPoolSize
	}
	if overlay.DispatchSizeCeiling != 0 {
		cfg.DispatchSizeCeiling = overlay.DispatchSizeCeiling
	}
	if overlay.ScheduleTagKey != "" {
		cfg.ScheduleTagKey = overlay.ScheduleTagKey
	}
	if overlay.MetricsEnabled != nil {
		cfg.MetricsEnabled = *overlay.MetricsEnabled
	}
	if overlay.EventsEnabled != nil {
		cfg.EventsEnabled = *overlay.EventsEnabled
	}

	return cfg, nil
}

// daemonOverlay mirrors Daemon but with pointer booleans, so LoadDaemon can
// tell "file sets this to false" apart from "file doesn't mention this" —
// a plain bool can't carry that distinction when the default is true.
type daemonOverlay struct {
	DataDir             string        `yaml:"data_dir"`
	BindAddr            string        `yaml:"bind_addr"`
	APIAddr             string        `yaml:"api_addr"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	TargetBudget        time.Duration `yaml:"target_budget"`
	DispatchPoolSize    int           `yaml:"dispatch_pool_size"`
	DispatchSizeCeiling int           `yaml:"dispatch_size_ceiling"`
	ScheduleTagKey      string        `yaml:"schedule_tag_key"`
	MetricsEnabled      *bool         `yaml:"metrics_enabled"`
	EventsEnabled       *bool         `yaml:"events_enabled"`
}
