package model

import "strings"

// Operation is the closed set of structured operations the assistant understands.
type Operation string

const (
	OpNone                 Operation = "none"
	OpError                Operation = "error"
	OpClarify              Operation = "clarify"
	OpHelp                 Operation = "help"
	OpQuery                Operation = "query"
	OpLogSupport           Operation = "log_support"
	OpUpdateSupport        Operation = "update_support"
	OpCreateSite           Operation = "create_site"
	OpUpdateSite           Operation = "update_site"
	OpUpdateHardware       Operation = "update_hardware"
	OpUpdateImplementation Operation = "update_implementation"
	OpUpdateStock          Operation = "update_stock"
)

// WriteOperations lists every operation that mutates stored data.
var WriteOperations = []Operation{
	OpLogSupport,
	OpUpdateSupport,
	OpCreateSite,
	OpUpdateSite,
	OpUpdateHardware,
	OpUpdateImplementation,
	OpUpdateStock,
}

// Collection is a logical record collection in the tabular store.
type Collection string

const (
	CollectionSupportLog     Collection = "Support Log"
	CollectionSites          Collection = "Sites"
	CollectionHardware       Collection = "Hardware Inventory"
	CollectionImplementation Collection = "Implementation Details"
	CollectionStock          Collection = "Stock"
)

// Table returns the storage key of the collection.
func (c Collection) Table() string {
	return strings.ReplaceAll(strings.ToLower(string(c)), " ", "_")
}

// OperationInfo is the static description of a write operation.
type OperationInfo struct {
	Collection   Collection
	Requirements string
	Audit        AuditOutcome
	ChainLabel   string

	// EntityField names the data key holding the site reference, empty when the
	// operation does not target an existing site.
	EntityField string

	// Placeholders are chain steps always appended after this operation.
	Placeholders []Operation
}

// Info returns the static description for a write operation.
func (o Operation) Info() (OperationInfo, bool) {
	switch o {
	case OpLogSupport:
		return OperationInfo{
			Collection:   CollectionSupportLog,
			Requirements: "support_log",
			Audit:        AuditCreate,
			ChainLabel:   "destek kaydı",
			EntityField:  FieldSiteID,
		}, true
	case OpUpdateSupport:
		return OperationInfo{
			Collection:   CollectionSupportLog,
			Requirements: "update_support",
			Audit:        AuditUpdate,
			ChainLabel:   "destek kaydı",
			EntityField:  FieldSiteID,
		}, true
	case OpCreateSite:
		return OperationInfo{
			Collection:   CollectionSites,
			Requirements: "sites",
			Audit:        AuditCreate,
			ChainLabel:   "saha",
			Placeholders: []Operation{OpUpdateHardware, OpUpdateImplementation},
		}, true
	case OpUpdateSite:
		return OperationInfo{
			Collection:   CollectionSites,
			Requirements: "update_site",
			Audit:        AuditUpdate,
			ChainLabel:   "saha",
			EntityField:  FieldSiteID,
		}, true
	case OpUpdateHardware:
		return OperationInfo{
			Collection:   CollectionHardware,
			Requirements: "hardware_inventory",
			Audit:        AuditUpdate,
			ChainLabel:   "donanım",
			EntityField:  FieldSiteID,
		}, true
	case OpUpdateImplementation:
		return OperationInfo{
			Collection:   CollectionImplementation,
			Requirements: "implementation_details",
			Audit:        AuditUpdate,
			ChainLabel:   "ayarlar",
			EntityField:  FieldSiteID,
		}, true
	case OpUpdateStock:
		return OperationInfo{
			Collection:   CollectionStock,
			Requirements: "stock",
			Audit:        AuditUpdate,
			ChainLabel:   "stok",
		}, true
	}
	return OperationInfo{}, false
}

// IsWrite reports whether the operation mutates stored data.
func (o Operation) IsWrite() bool {
	_, ok := o.Info()
	return ok
}

// IsPassive reports whether the operation carries no pending obligation.
func (o Operation) IsPassive() bool {
	switch o {
	case OpNone, OpQuery, OpClarify, OpHelp, OpError, "":
		return true
	}
	return false
}

// ParseOperation maps a parser-provided label onto an Operation.
func ParseOperation(s string) Operation {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpNone, OpError, OpClarify, OpHelp, OpQuery:
		return op
	}
	if op.IsWrite() {
		return op
	}
	if op == "" {
		return OpNone
	}
	return OpError
}

// Common field names shared across operations.
const (
	FieldSiteID       = "site_id"
	FieldTicketID     = "ticket_id"
	FieldFacilityType = "facility_type"
	FieldStatus       = "status"
	FieldReceivedDate = "received_date"
	FieldResolvedDate = "resolved_date"
	FieldDeviceType   = "device_type"
	FieldEntries      = "entries"
	FieldCustomer     = "customer"
	FieldCountry      = "country"
	FieldQueryType    = "query_type"
)

// IdentifyingFields are the references a follow-up turn may inherit.
var IdentifyingFields = []string{FieldSiteID, FieldTicketID}
