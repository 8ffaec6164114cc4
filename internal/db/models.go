package db

import (
	"encoding/json"
	"time"
)

// Candidate maps intake.candidates.
type Candidate struct {
	CandidateID         int64           `gorm:"column:candidate_id;primaryKey;autoIncrement"`
	CandidateUUID       string          `gorm:"column:candidate_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	FirstName           string          `gorm:"column:first_name;type:text;not null"`
	LastName            string          `gorm:"column:last_name;type:text;not null;default:''"`
	PhoneRaw            string          `gorm:"column:phone_raw;type:text;not null;default:''"`
	PhoneNormalized     string          `gorm:"column:phone_normalized;type:text;not null;default:''"`
	Email               string          `gorm:"column:email;type:text;not null;default:''"`
	DuplicateKey        string          `gorm:"column:duplicate_key;type:text;not null"`
	JobID               string          `gorm:"column:job_id;type:text;not null"`
	JobTitle            string          `gorm:"column:job_title;type:text;not null;default:''"`
	BranchID            string          `gorm:"column:branch_id;type:text;not null"`
	BranchName          string          `gorm:"column:branch_name;type:text;not null;default:''"`
	Skills              json.RawMessage `gorm:"column:skills;type:jsonb;not null;default:'[]'"`
	Qualifications      json.RawMessage `gorm:"column:qualifications;type:jsonb;not null;default:'[]'"`
	CVObjectKey         *string         `gorm:"column:cv_object_key;type:text"`
	CVFileName          *string         `gorm:"column:cv_file_name;type:text"`
	CVLanguage          *string         `gorm:"column:cv_language;type:text"`
	DuplicateStatus     string          `gorm:"column:duplicate_status;type:intake.duplicate_status;not null;default:none"`
	PrimaryRecordID     *int64          `gorm:"column:primary_record_id;type:bigint"`
	LinkedCandidateIDs  json.RawMessage `gorm:"column:linked_candidate_ids;type:jsonb;not null;default:'[]'"`
	NotDuplicateOf      json.RawMessage `gorm:"column:not_duplicate_of;type:jsonb;not null;default:'[]'"`
	ApplicationHistory  json.RawMessage `gorm:"column:application_history;type:jsonb;not null;default:'[]'"`
	DuplicateReviewedAt *time.Time      `gorm:"column:duplicate_reviewed_at;type:timestamptz"`
	DuplicateReviewedBy *string         `gorm:"column:duplicate_reviewed_by;type:text"`
	Version             int64           `gorm:"column:version;type:bigint;not null;default:1"`
	DeletedAt           *time.Time      `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt           time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Candidate) TableName() string { return "intake.candidates" }

// ActivityLog maps intake.activity_log, the append-only audit sink.
type ActivityLog struct {
	ActivityID    int64           `gorm:"column:activity_id;primaryKey;autoIncrement"`
	ActivityUUID  string          `gorm:"column:activity_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	EntityID      int64           `gorm:"column:entity_id;type:bigint;not null"`
	Action        string          `gorm:"column:action;type:text;not null"`
	Description   string          `gorm:"column:description;type:text;not null;default:''"`
	PreviousValue json.RawMessage `gorm:"column:previous_value;type:jsonb"`
	NewValue      json.RawMessage `gorm:"column:new_value;type:jsonb"`
	Actor         string          `gorm:"column:actor;type:text;not null;default:''"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ActivityLog) TableName() string { return "intake.activity_log" }

// IntakeBatch maps intake.batches; one bulk CV upload run.
type IntakeBatch struct {
	BatchID    int64      `gorm:"column:batch_id;primaryKey;autoIncrement"`
	BatchUUID  string     `gorm:"column:batch_uuid;type:uuid;not null;unique"`
	JobID      string     `gorm:"column:job_id;type:text;not null"`
	JobTitle   string     `gorm:"column:job_title;type:text;not null;default:''"`
	BranchID   string     `gorm:"column:branch_id;type:text;not null"`
	BranchName string     `gorm:"column:branch_name;type:text;not null;default:''"`
	Status     string     `gorm:"column:status;type:text;not null;default:running"`
	ItemCount  int        `gorm:"column:item_count;type:integer;not null;default:0"`
	CreatedBy  string     `gorm:"column:created_by;type:text;not null;default:''"`
	FinishedAt *time.Time `gorm:"column:finished_at;type:timestamptz"`
	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IntakeBatch) TableName() string { return "intake.batches" }

// IntakeItem maps intake.batch_items; one file within a batch.
type IntakeItem struct {
	ItemID        int64      `gorm:"column:item_id;primaryKey;autoIncrement"`
	ItemUUID      string     `gorm:"column:item_uuid;type:uuid;not null;unique"`
	BatchID       int64      `gorm:"column:batch_id;type:bigint;not null"`
	Position      int        `gorm:"column:position;type:integer;not null"`
	FileName      string     `gorm:"column:file_name;type:text;not null"`
	CVObjectKey   *string    `gorm:"column:cv_object_key;type:text"`
	Status        string     `gorm:"column:status;type:intake.item_status;not null;default:pending"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text"`
	RetryCount    int        `gorm:"column:retry_count;type:integer;not null;default:0"`
	CandidateID   *int64     `gorm:"column:candidate_id;type:bigint"`
	DuplicateOfID *int64     `gorm:"column:duplicate_of_id;type:bigint"`
	MatchType     *string    `gorm:"column:match_type;type:text"`
	Confidence    *int       `gorm:"column:confidence;type:integer"`
	ExtractedBy   *string    `gorm:"column:extracted_by;type:text"`
	ProcessedAt   *time.Time `gorm:"column:processed_at;type:timestamptz"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IntakeItem) TableName() string { return "intake.batch_items" }

// Operator maps intake.operators.
type Operator struct {
	OperatorID         int64      `gorm:"column:operator_id;primaryKey;autoIncrement"`
	Username           string     `gorm:"column:username;type:text;not null;unique"`
	PasswordHash       string     `gorm:"column:password_hash;type:text;not null"`
	MustChangePassword bool       `gorm:"column:must_change_password;type:boolean;not null;default:false"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at;type:timestamptz"`
}

func (Operator) TableName() string { return "intake.operators" }

// OperatorSession maps intake.operator_sessions.
type OperatorSession struct {
	SessionID  string    `gorm:"column:session_id;type:text;primaryKey"`
	OperatorID int64     `gorm:"column:operator_id;type:bigint;not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;type:timestamptz;not null"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;type:timestamptz;not null;default:now()"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (OperatorSession) TableName() string { return "intake.operator_sessions" }

func autoMigrateModels() []any {
	return []any{
		&Candidate{},
		&ActivityLog{},
		&IntakeBatch{},
		&IntakeItem{},
		&Operator{},
		&OperatorSession{},
	}
}
