package api

import "time"

// Instance is the instance record returned by the v4 API
type Instance struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Index        int        `json:"index"`
	DeploymentID string     `json:"deploymentId"`
	State        string     `json:"state"`
	Kind         string     `json:"kind"`
	CreationDate time.Time  `json:"creationDate"`
	DeletionDate *time.Time `json:"deletionDate,omitempty"`
}

// Deployment is the deployment record returned by the v4 API
type Deployment struct {
	ID           string     `json:"id"`
	State        string     `json:"state"`
	CreationDate time.Time  `json:"creationDate"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	CommitID     string     `json:"commitId"`
}

// LegacyDeployment is the deployment record returned by the v2 API
type LegacyDeployment struct {
	UUID   string `json:"uuid"`
	State  string `json:"state"`
	Date   int64  `json:"date"`
	Commit string `json:"commit"`
}
