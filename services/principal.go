package services

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
	"gorm.io/gorm"
)

// Principal is the resolved actor behind a request: either an authenticated
// user with a role, or an anonymous contractor acting through a scoped access
// token. All authorization decisions go through it so the policy lives in one
// place instead of scattered role checks.
type Principal struct {
	UserID         *uint
	Username       string
	Role           string
	ContractorID   *uint
	ContractorName string
	ProjectID      *uint // set for token-scoped principals; their only project
	ViaToken       bool
}

// CurrentPrincipal resolves the authenticated principal from the gin context
// populated by AuthMiddleware.
func CurrentPrincipal(c *gin.Context, db *gorm.DB) (*Principal, error) {
	userIDValue, exists := c.Get("user_id")
	if !exists {
		return nil, utils.ErrUnauthenticated
	}
	userID, ok := userIDValue.(uint)
	if !ok || userID == 0 {
		return nil, utils.ErrUnauthenticated
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrUnauthenticated
		}
		return nil, err
	}

	return &Principal{
		UserID:       &user.ID,
		Username:     user.Username,
		Role:         user.Role,
		ContractorID: user.ContractorID,
	}, nil
}

// TokenPrincipal builds the principal for a magic-link bearer. The contractor
// may still be nil for an unbound token; it is resolved on first use.
func TokenPrincipal(tok *models.ContractorAccessToken) *Principal {
	p := &Principal{
		Role:         models.RoleContractor,
		ContractorID: tok.ContractorID,
		ProjectID:    &tok.ProjectID,
		ViaToken:     true,
	}
	if tok.Contractor != nil {
		p.ContractorName = tok.Contractor.Name
	}
	return p
}

// IsStaff reports whether the principal holds a supervisor or admin account.
func (p *Principal) IsStaff() bool {
	return !p.ViaToken && (p.Role == models.RoleAdmin || p.Role == models.RoleSupervisor)
}

// CanTransition decides whether the principal may move the penetration into
// newStatus. Contractors (account or token) only act on pens assigned to
// their own contractor and never verify; token bearers are additionally
// confined to the token's project.
func (p *Principal) CanTransition(pen *models.Penetration, newStatus string) error {
	if p.IsStaff() {
		return nil
	}
	if p.Role != models.RoleContractor {
		return utils.ErrUnauthorized
	}
	if newStatus == models.StatusVerified {
		return utils.ErrUnauthorized
	}
	if p.ContractorID == nil || pen.ContractorID == nil || *pen.ContractorID != *p.ContractorID {
		return utils.ErrUnauthorized
	}
	if p.ViaToken && (p.ProjectID == nil || pen.ProjectID != *p.ProjectID) {
		return utils.ErrUnauthorized
	}
	return nil
}

// CanEditPen decides whether the principal may edit the penetration's fields.
// Supervisor-only fields are enforced separately by the controller.
func (p *Principal) CanEditPen(pen *models.Penetration) error {
	if p.IsStaff() {
		return nil
	}
	if p.Role != models.RoleContractor || p.ContractorID == nil ||
		pen.ContractorID == nil || *pen.ContractorID != *p.ContractorID {
		return utils.ErrUnauthorized
	}
	return nil
}

// CanManageProject: admins anywhere, supervisors on projects they supervise.
func (p *Principal) CanManageProject(project *models.Project) error {
	return p.CanDeletePen(project)
}

// CanDeletePen: admins anywhere, supervisors within projects they supervise.
func (p *Principal) CanDeletePen(project *models.Project) error {
	if p.ViaToken {
		return utils.ErrUnauthorized
	}
	switch p.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleSupervisor:
		if project.SupervisorID != nil && p.UserID != nil && *project.SupervisorID == *p.UserID {
			return nil
		}
	}
	return utils.ErrUnauthorized
}

// CanManage gates contractor/project/link administration.
func (p *Principal) CanManage() error {
	if p.IsStaff() {
		return nil
	}
	return utils.ErrUnauthorized
}
