package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Dropdown values accepted by the store.
var (
	SupportTypes     = []string{"Visit", "Remote", "Call"}
	SupportStatuses  = []string{"Open", "Resolved", "Follow-up (ERG)", "Follow-up (Customer)", "Scheduled"}
	FacilityTypes    = []string{"Food", "Healthcare"}
	DeviceTypes      = []string{"Tag", "Anchor", "Gateway", "Charging Dock", "Power Bank", "Power Adapter", "USB Cable", "Other"}
	ContractStatuses = []string{"Active", "Pending", "Expired", "Pilot"}
	StockLocations   = []string{"Istanbul Office", "Adana Storage", "Other"}
	StockConditions  = []string{"New", "Refurbished", "Faulty", "Reserved"}
)

// Validate checks typed records before they reach the store.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("siteid", func(fl validator.FieldLevel) bool {
		return ValidSiteID(fl.Field().String())
	})
	return v
}

// Record is the typed view of an operation payload.
type Record interface {
	SiteRef() string
}

// SupportLogRecord is a new support log entry.
type SupportLogRecord struct {
	TicketID     string `mapstructure:"ticket_id" json:"ticket_id,omitempty"`
	SiteID       string `mapstructure:"site_id" json:"site_id" validate:"required"`
	ReceivedDate string `mapstructure:"received_date" json:"received_date" validate:"required,datetime=2006-01-02"`
	ResolvedDate string `mapstructure:"resolved_date" json:"resolved_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Type         string `mapstructure:"type" json:"type" validate:"required,oneof=Visit Remote Call"`
	Status       string `mapstructure:"status" json:"status" validate:"required,oneof=Open Resolved 'Follow-up (ERG)' 'Follow-up (Customer)' Scheduled"`
	RootCause    string `mapstructure:"root_cause" json:"root_cause,omitempty"`
	Resolution   string `mapstructure:"resolution" json:"resolution,omitempty"`
	IssueSummary string `mapstructure:"issue_summary" json:"issue_summary" validate:"required"`
	Responsible  string `mapstructure:"responsible" json:"responsible" validate:"required"`
	Devices      string `mapstructure:"devices_affected" json:"devices_affected,omitempty"`
	Notes        string `mapstructure:"notes" json:"notes,omitempty"`
}

// SiteRef implements Record.
func (r *SupportLogRecord) SiteRef() string { return r.SiteID }

// SupportUpdate is a partial update of an existing support ticket.
type SupportUpdate struct {
	TicketID     string `mapstructure:"ticket_id" json:"ticket_id,omitempty"`
	SiteID       string `mapstructure:"site_id" json:"site_id,omitempty"`
	ResolvedDate string `mapstructure:"resolved_date" json:"resolved_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status       string `mapstructure:"status" json:"status,omitempty" validate:"omitempty,oneof=Open Resolved 'Follow-up (ERG)' 'Follow-up (Customer)' Scheduled"`
	RootCause    string `mapstructure:"root_cause" json:"root_cause,omitempty"`
	Resolution   string `mapstructure:"resolution" json:"resolution,omitempty"`
	Responsible  string `mapstructure:"responsible" json:"responsible,omitempty"`
	Notes        string `mapstructure:"notes" json:"notes,omitempty"`
}

// SiteRef implements Record.
func (r *SupportUpdate) SiteRef() string { return r.SiteID }

// SiteRecord is a new customer site.
type SiteRecord struct {
	SiteID         string `mapstructure:"site_id" json:"site_id,omitempty" validate:"omitempty,siteid"`
	Customer       string `mapstructure:"customer" json:"customer" validate:"required"`
	City           string `mapstructure:"city" json:"city" validate:"required"`
	Country        string `mapstructure:"country" json:"country" validate:"required"`
	Address        string `mapstructure:"address" json:"address,omitempty"`
	FacilityType   string `mapstructure:"facility_type" json:"facility_type" validate:"required,oneof=Food Healthcare"`
	ContractStatus string `mapstructure:"contract_status" json:"contract_status" validate:"required,oneof=Active Pending Expired Pilot"`
	GoLiveDate     string `mapstructure:"go_live_date" json:"go_live_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Supervisor1    string `mapstructure:"supervisor_1" json:"supervisor_1" validate:"required"`
	Phone1         string `mapstructure:"phone_1" json:"phone_1" validate:"required"`
	Email1         string `mapstructure:"email_1" json:"email_1,omitempty" validate:"omitempty,email"`
	DashboardLink  string `mapstructure:"dashboard_link" json:"dashboard_link,omitempty"`
	WhatsappGroup  string `mapstructure:"whatsapp_group" json:"whatsapp_group,omitempty"`
	Notes          string `mapstructure:"notes" json:"notes,omitempty"`
}

// SiteRef implements Record.
func (r *SiteRecord) SiteRef() string { return r.SiteID }

// SiteUpdate is a partial update of an existing site.
type SiteUpdate struct {
	SiteID         string `mapstructure:"site_id" json:"site_id" validate:"required,siteid"`
	Customer       string `mapstructure:"customer" json:"customer,omitempty"`
	City           string `mapstructure:"city" json:"city,omitempty"`
	Country        string `mapstructure:"country" json:"country,omitempty"`
	Address        string `mapstructure:"address" json:"address,omitempty"`
	FacilityType   string `mapstructure:"facility_type" json:"facility_type,omitempty" validate:"omitempty,oneof=Food Healthcare"`
	ContractStatus string `mapstructure:"contract_status" json:"contract_status,omitempty" validate:"omitempty,oneof=Active Pending Expired Pilot"`
	GoLiveDate     string `mapstructure:"go_live_date" json:"go_live_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Supervisor1    string `mapstructure:"supervisor_1" json:"supervisor_1,omitempty"`
	Phone1         string `mapstructure:"phone_1" json:"phone_1,omitempty"`
	Email1         string `mapstructure:"email_1" json:"email_1,omitempty" validate:"omitempty,email"`
	DashboardLink  string `mapstructure:"dashboard_link" json:"dashboard_link,omitempty"`
	WhatsappGroup  string `mapstructure:"whatsapp_group" json:"whatsapp_group,omitempty"`
	Notes          string `mapstructure:"notes" json:"notes,omitempty"`
}

// SiteRef implements Record.
func (r *SiteUpdate) SiteRef() string { return r.SiteID }

// HardwareEntry is one device line of a hardware update.
type HardwareEntry struct {
	DeviceType string `mapstructure:"device_type" json:"device_type" validate:"required,oneof=Tag Anchor Gateway 'Charging Dock' 'Power Bank' 'Power Adapter' 'USB Cable' Other"`
	Qty        int    `mapstructure:"qty" json:"qty" validate:"min=1"`
	HWVersion  string `mapstructure:"hw_version" json:"hw_version,omitempty"`
	FWVersion  string `mapstructure:"fw_version" json:"fw_version,omitempty"`
	Notes      string `mapstructure:"notes" json:"notes,omitempty"`
}

// HardwareUpdate upserts device lines for a site.
type HardwareUpdate struct {
	SiteID  string          `mapstructure:"site_id" json:"site_id" validate:"required,siteid"`
	Entries []HardwareEntry `mapstructure:"entries" json:"entries" validate:"required,min=1,dive"`
}

// SiteRef implements Record.
func (r *HardwareUpdate) SiteRef() string { return r.SiteID }

// ImplementationRecord holds site installation settings.
type ImplementationRecord struct {
	SiteID                   string `mapstructure:"site_id" json:"site_id" validate:"required,siteid"`
	InternetProvider         string `mapstructure:"internet_provider" json:"internet_provider,omitempty"`
	SSID                     string `mapstructure:"ssid" json:"ssid,omitempty"`
	Password                 string `mapstructure:"password" json:"password,omitempty"`
	GatewayPlacement         string `mapstructure:"gateway_placement" json:"gateway_placement,omitempty"`
	ChargingDockPlacement    string `mapstructure:"charging_dock_placement" json:"charging_dock_placement,omitempty"`
	DispenserAnchorPlacement string `mapstructure:"dispenser_anchor_placement" json:"dispenser_anchor_placement,omitempty"`
	HandwashTime             string `mapstructure:"handwash_time" json:"handwash_time,omitempty"`
	TagCleanToRedTimeout     string `mapstructure:"tag_clean_to_red_timeout" json:"tag_clean_to_red_timeout,omitempty"`
	CleanHygieneTime         string `mapstructure:"clean_hygiene_time" json:"clean_hygiene_time,omitempty"`
	HPAlertTime              string `mapstructure:"hp_alert_time" json:"hp_alert_time,omitempty"`
	HandHygieneTime          string `mapstructure:"hand_hygiene_time" json:"hand_hygiene_time,omitempty"`
	HandHygieneInterval      string `mapstructure:"hand_hygiene_interval" json:"hand_hygiene_interval,omitempty"`
	HandHygieneType          string `mapstructure:"hand_hygiene_type" json:"hand_hygiene_type,omitempty"`
	Notes                    string `mapstructure:"notes" json:"notes,omitempty"`
}

// SiteRef implements Record.
func (r *ImplementationRecord) SiteRef() string { return r.SiteID }

// StockRecord is a warehouse stock line.
type StockRecord struct {
	Location   string `mapstructure:"location" json:"location" validate:"required,oneof='Istanbul Office' 'Adana Storage' Other"`
	DeviceType string `mapstructure:"device_type" json:"device_type" validate:"required,oneof=Tag Anchor Gateway 'Charging Dock' 'Power Bank' 'Power Adapter' 'USB Cable' Other"`
	Qty        int    `mapstructure:"qty" json:"qty" validate:"min=1"`
	Condition  string `mapstructure:"condition" json:"condition" validate:"required,oneof=New Refurbished Faulty Reserved"`
	HWVersion  string `mapstructure:"hw_version" json:"hw_version,omitempty"`
	FWVersion  string `mapstructure:"fw_version" json:"fw_version,omitempty"`
	Notes      string `mapstructure:"notes" json:"notes,omitempty"`
}

// SiteRef implements Record.
func (r *StockRecord) SiteRef() string { return "" }

// InvalidFieldsError lists the fields that failed typed validation.
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// BuildRecord converts an open payload into the typed record for op and validates it.
func BuildRecord(op Operation, data Data) (Record, error) {
	var rec Record
	switch op {
	case OpLogSupport:
		rec = &SupportLogRecord{}
	case OpUpdateSupport:
		rec = &SupportUpdate{}
	case OpCreateSite:
		rec = &SiteRecord{}
	case OpUpdateSite:
		rec = &SiteUpdate{}
	case OpUpdateHardware:
		rec = &HardwareUpdate{}
		data = withEntries(data)
	case OpUpdateImplementation:
		rec = &ImplementationRecord{}
	case OpUpdateStock:
		rec = &StockRecord{}
	default:
		return nil, fmt.Errorf("operation %q has no record type", op)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           rec,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(map[string]any(publicFields(data))); err != nil {
		return nil, fmt.Errorf("decode %s: %w", op, err)
	}

	if err := Validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, &InvalidFieldsError{Fields: fields}
		}
		return nil, err
	}
	return rec, nil
}

// withEntries folds a single-device payload into the entries list.
func withEntries(data Data) Data {
	if len(data.Entries(FieldEntries)) > 0 || !data.Has(FieldDeviceType) {
		return data
	}
	out := data.Clone()
	entry := map[string]any{}
	for _, k := range []string{FieldDeviceType, "qty", "hw_version", "fw_version", "notes"} {
		if v, ok := data[k]; ok {
			entry[k] = v
		}
	}
	out[FieldEntries] = []any{entry}
	return out
}

func publicFields(data Data) Data {
	out := make(Data, len(data))
	for k, v := range data {
		if !IsInternalKey(k) && !IsEmpty(v) {
			out[k] = v
		}
	}
	return out
}
