package model

// Optional fields are pointers: nil on create means "use the column
// default", nil on update means "leave unchanged".

type Group struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Title            *string `json:"title"`
	Tags             *string `json:"tags"`
	AutoPublish      *int    `json:"auto_publish"`
	PublishStartTime *string `json:"publish_start_time"`
	AutoTrain        *int    `json:"auto_train"`
	PublishType      *int    `json:"publish_type"`
	ProductLink      *string `json:"product_link"`
	TrainStartTime   *string `json:"train_start_time"`
}

type Device struct {
	ID          int64   `json:"id"`
	Serial      string  `json:"serial"`
	ForwardPort *int    `json:"forward_port"`
	Online      *int    `json:"online"`
	IP          *string `json:"ip"`
	AgentIP     string  `json:"agent_ip"`
	MasterIP    string  `json:"master_ip"`
	Init        *int    `json:"init"`
	UpdateTime  *string `json:"update_time"`
}

type Account struct {
	ID            int64   `json:"id"`
	GroupID       *int64  `json:"group_id"`
	Email         string  `json:"email"`
	Pwd           string  `json:"pwd"`
	Username      *string `json:"username"`
	Fans          *int    `json:"fans"`
	ShopCreator   *int    `json:"shop_creator"`
	Device        *string `json:"device"`
	RegisterTime  *string `json:"register_time"`
	LastLoginTime *string `json:"last_login_time"`
}

type Material struct {
	ID         int64   `json:"id"`
	GroupID    *int64  `json:"group_id"`
	Name       string  `json:"name"`
	MD5        string  `json:"md5"`
	Used       *int    `json:"used"`
	CreateTime *string `json:"create_time"`
}

type MaterialFilter struct {
	Used    *int
	GroupID *int64
}

type PublishJob struct {
	ID          int64      `json:"id"`
	GroupID     *int64     `json:"group_id"`
	MaterialID  int64      `json:"material_id"`
	AccountID   int64      `json:"account_id"`
	Title       *string    `json:"title"`
	Tags        *string    `json:"tags"`
	Status      *JobStatus `json:"status"`
	StartTime   *string    `json:"start_time"`
	EndTime     *string    `json:"end_time"`
	PublishType *int       `json:"publish_type"`
	ProductLink *string    `json:"product_link"`
	CreateTime  *string    `json:"create_time"`

	// Joined for display; ignored on write.
	MaterialName *string `json:"material_name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Device       *string `json:"device,omitempty"`
}

type TrainJob struct {
	ID              int64      `json:"id"`
	GroupID         *int64     `json:"group_id"`
	AccountID       int64      `json:"account_id"`
	LikeProbable    *int       `json:"like_probable"`
	FollowProbable  *int       `json:"follow_probable"`
	CollectProbable *int       `json:"collect_probable"`
	Status          *JobStatus `json:"status"`
	StartTime       *string    `json:"start_time"`
	EndTime         *string    `json:"end_time"`
	CreateTime      *string    `json:"create_time"`

	// Joined for display; ignored on write.
	Device   *string `json:"device,omitempty"`
	Username *string `json:"username,omitempty"`
}

type JobFilter struct {
	Status    *JobStatus
	GroupID   *int64
	AccountID *int64
}

type StatusCount struct {
	Status JobStatus `json:"status"`
	Count  int       `json:"count"`
}

type DialogWatcher struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Conditions string  `json:"conditions"`
	Action     string  `json:"action"`
	Status     *int    `json:"status"`
	CreateTime *string `json:"create_time"`
}

type Music struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Author     *string `json:"author"`
	URL        string  `json:"url"`
	Duration   *int    `json:"duration"`
	CreateTime *string `json:"create_time"`
}
