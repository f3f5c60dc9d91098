package instances

import (
	"fmt"
	"time"

	"logview/internal/app/api"
)

// Instance kinds
const (
	KindBuild = "BUILD"
	KindRun   = "RUN"
)

// StateDeleted is the terminal instance state
const StateDeleted = "DELETED"

// DeploymentState is the normalized deployment state across API generations
type DeploymentState string

const (
	Queued         DeploymentState = "QUEUED"
	WorkInProgress DeploymentState = "WORK_IN_PROGRESS"
	Succeeded      DeploymentState = "SUCCEEDED"
	Failed         DeploymentState = "FAILED"
	Cancelled      DeploymentState = "CANCELLED"
)

// Deployment is the canonical deployment model
type Deployment struct {
	ID           string
	State        DeploymentState
	CreationDate time.Time
	EndDate      *time.Time
	CommitID     string
}

// InProgress reports whether the deployment may still change
func (d *Deployment) InProgress() bool {
	return d.State == Queued || d.State == WorkInProgress || d.EndDate == nil
}

// Instance is the canonical instance model; a ghost only carries its id
type Instance struct {
	ID           string
	Name         string
	Index        int
	Deployment   *Deployment
	State        string
	CreationDate time.Time
	DeletionDate *time.Time
	Kind         string
	Ghost        bool
}

// NewGhost returns the placeholder for an instance the API does not know
func NewGhost(id string) *Instance {
	return &Instance{ID: id, Ghost: true}
}

// Label is the human name used to annotate log lines
func (i *Instance) Label() string {
	if i.Ghost {
		return i.ID
	}

	if i.Kind == KindBuild {
		return fmt.Sprintf("%s (build)", i.Name)
	}

	return fmt.Sprintf("%s#%d", i.Name, i.Index)
}

// Interesting reports whether an instance can still change and must be refreshed
func (i *Instance) Interesting() bool {
	if i.Ghost || i.Deployment == nil {
		return true
	}

	if i.Deployment.InProgress() {
		return true
	}

	return i.State != StateDeleted
}

// differs reports a change worth republishing
func (i *Instance) differs(other *Instance) bool {
	if i.Ghost != other.Ghost || i.State != other.State {
		return true
	}

	switch {
	case i.Deployment == nil && other.Deployment == nil:
		return false
	case i.Deployment == nil || other.Deployment == nil:
		return true
	default:
		return i.Deployment.State != other.Deployment.State
	}
}

var legacyStates = map[string]DeploymentState{
	"WIP":       WorkInProgress,
	"OK":        Succeeded,
	"FAIL":      Failed,
	"CANCELLED": Cancelled,
}

var knownStates = map[string]DeploymentState{
	string(Queued):         Queued,
	string(WorkInProgress): WorkInProgress,
	string(Succeeded):      Succeeded,
	string(Failed):         Failed,
	string(Cancelled):      Cancelled,
}

// fromDeployment converts a v4 deployment; ok is false for an unknown state
func fromDeployment(d *api.Deployment) (*Deployment, bool) {
	state, ok := knownStates[d.State]
	if !ok {
		state = Failed
	}

	return &Deployment{
		ID:           d.ID,
		State:        state,
		CreationDate: d.CreationDate,
		EndDate:      d.EndDate,
		CommitID:     d.CommitID,
	}, ok
}

// fromLegacyDeployment converts a v2 deployment; its end is the last deletion among its instances
func fromLegacyDeployment(d *api.LegacyDeployment, instances []api.Instance) (*Deployment, bool) {
	state, ok := legacyStates[d.State]
	if !ok {
		state = Failed
	}

	var end *time.Time

	for _, inst := range instances {
		if inst.DeletionDate == nil {
			continue
		}

		if end == nil || inst.DeletionDate.After(*end) {
			date := *inst.DeletionDate
			end = &date
		}
	}

	return &Deployment{
		ID:           d.UUID,
		State:        state,
		CreationDate: time.UnixMilli(d.Date).UTC(),
		EndDate:      end,
		CommitID:     d.Commit,
	}, ok
}

func fromInstance(raw api.Instance, deployment *Deployment) *Instance {
	return &Instance{
		ID:           raw.ID,
		Name:         raw.Name,
		Index:        raw.Index,
		Deployment:   deployment,
		State:        raw.State,
		CreationDate: raw.CreationDate,
		DeletionDate: raw.DeletionDate,
		Kind:         raw.Kind,
	}
}
