package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LoadType is the catalog entity kind a file describes.
type LoadType string

const (
	LoadTypeCategory     LoadType = "category"
	LoadTypeBrand        LoadType = "brand"
	LoadTypeAttribute    LoadType = "attribute"
	LoadTypeReturnPolicy LoadType = "return_policy"
	LoadTypeProduct      LoadType = "product"
	LoadTypeItem         LoadType = "product_item"
	LoadTypePrice        LoadType = "product_price"
	LoadTypeMetaTag      LoadType = "meta_tag"
)

// LoadTypes lists the supported load types in dependency order.
var LoadTypes = []LoadType{
	LoadTypeCategory,
	LoadTypeBrand,
	LoadTypeAttribute,
	LoadTypeReturnPolicy,
	LoadTypeProduct,
	LoadTypeItem,
	LoadTypePrice,
	LoadTypeMetaTag,
}

// Prerequisites lists, per load type, the load types a tenant must have
// completed at least once before a file of that type is accepted.
var Prerequisites = map[LoadType][]LoadType{
	LoadTypeProduct: {LoadTypeBrand, LoadTypeReturnPolicy},
	LoadTypeItem:    {LoadTypeProduct},
	LoadTypePrice:   {LoadTypeProduct},
	LoadTypeMetaTag: {LoadTypeProduct},
}

// ParseLoadType accepts the canonical name plus the plural forms older clients send.
func ParseLoadType(s string) (LoadType, bool) {
	switch LoadType(s) {
	case LoadTypeCategory, "categories":
		return LoadTypeCategory, true
	case LoadTypeBrand, "brands":
		return LoadTypeBrand, true
	case LoadTypeAttribute, "attributes":
		return LoadTypeAttribute, true
	case LoadTypeReturnPolicy, "return_policies":
		return LoadTypeReturnPolicy, true
	case LoadTypeProduct, "products":
		return LoadTypeProduct, true
	case LoadTypeItem, "product_items":
		return LoadTypeItem, true
	case LoadTypePrice, "product_prices":
		return LoadTypePrice, true
	case LoadTypeMetaTag, "meta_tags":
		return LoadTypeMetaTag, true
	}
	return "", false
}

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	SessionPending             SessionStatus = "pending"
	SessionProcessing          SessionStatus = "processing"
	SessionCompleted           SessionStatus = "completed"
	SessionCompletedWithErrors SessionStatus = "completed_with_errors"
	SessionFailedValidation    SessionStatus = "failed_validation"
	SessionFailed              SessionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionCompletedWithErrors, SessionFailedValidation, SessionFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal session transition.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionPending:
		return to == SessionProcessing
	case SessionProcessing:
		return to.IsTerminal()
	}
	return false
}

// UploadSession is the durable record of one ingestion job.
type UploadSession struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID         string         `gorm:"type:varchar(255);not null;index:idx_upload_sessions_tenant_status" json:"tenantId"`
	LoadType         LoadType       `gorm:"type:varchar(30);not null" json:"loadType"`
	OriginalFilename string         `gorm:"type:varchar(512);not null" json:"originalFilename"`
	StorageLocator   string         `gorm:"type:text;not null" json:"storageLocator"`
	Status           SessionStatus  `gorm:"type:varchar(30);not null;default:'pending';index:idx_upload_sessions_tenant_status" json:"status"`
	Details          string         `gorm:"type:text" json:"details,omitempty"`
	Summary          datatypes.JSON `gorm:"type:jsonb" json:"summary,omitempty"`
	Errors           datatypes.JSON `gorm:"type:jsonb" json:"-"`
	RecordCount      int            `gorm:"not null;default:0" json:"recordCount"`
	ErrorCount       int            `gorm:"not null;default:0" json:"errorCount"`
	SubmittedBy      string         `gorm:"type:varchar(255)" json:"submittedBy,omitempty"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	FinishedAt       *time.Time     `json:"finishedAt,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}

// SessionOutcome is what the pipeline reports when a job reaches a terminal state.
type SessionOutcome struct {
	Status        SessionStatus
	RecordCount   int
	ErrorCount    int
	SucceededRows int
	FailedRows    int
	Message       string
	Errors        []RowError
}

// SessionSummary is stored as jsonb next to the serialized error list.
type SessionSummary struct {
	Message       string            `json:"message"`
	SucceededRows int               `json:"succeeded_rows"`
	FailedRows    int               `json:"failed_rows"`
	ErrorsByKind  map[ErrorKind]int `json:"errors_by_kind,omitempty"`
}

// Summarize builds the jsonb summary for an outcome.
func (o SessionOutcome) Summarize() SessionSummary {
	s := SessionSummary{
		Message:       o.Message,
		SucceededRows: o.SucceededRows,
		FailedRows:    o.FailedRows,
	}
	if len(o.Errors) > 0 {
		s.ErrorsByKind = make(map[ErrorKind]int)
		for _, e := range o.Errors {
			s.ErrorsByKind[e.ErrorKind]++
		}
	}
	return s
}
