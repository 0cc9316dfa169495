package cytomine

import (
	"context"
	"fmt"
	"strings"
)

type User struct {
	Resource
	Username    string `json:"username,omitempty"`
	Firstname   string `json:"firstname,omitempty"`
	Lastname    string `json:"lastname,omitempty"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	Language    string `json:"language,omitempty"`
	Origin      string `json:"origin,omitempty"`
	IsDeveloper *bool  `json:"isDeveloper,omitempty"`
	Admin       *bool  `json:"admin,omitempty"`
	Guest       *bool  `json:"guest,omitempty"`
	IsUser      *bool  `json:"user,omitempty"`
	Algo        *bool  `json:"algo,omitempty"`
}

func (u *User) CallbackIdentifier() string { return "user" }

func (u *User) URI() string { return resourceURI("user", u.ID) }

// UserKeys is the API key pair of a user.
type UserKeys struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// Keys fetches the key pair of the user. Only admins may read other users'
// keys.
func (u *User) Keys(ctx context.Context, c *Client) (*UserKeys, error) {
	if u.IsNew() {
		return nil, fmt.Errorf("%w: cannot fetch the keys of a user with no id", ErrNoID)
	}
	keys := &UserKeys{}
	if err := c.Get(ctx, fmt.Sprintf("user/%d/keys.json", u.ID), nil, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// CurrentUser is the user owning the keys of the connection.
type CurrentUser struct {
	User
	PublicKey  string `json:"publicKey,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	AdminByNow *bool  `json:"adminByNow,omitempty"`
	UserByNow  *bool  `json:"userByNow,omitempty"`
	GuestByNow *bool  `json:"guestByNow,omitempty"`
	IsSwitched *bool  `json:"isSwitched,omitempty"`
}

func (u *CurrentUser) URI() string { return "user/current.json" }

func (u *CurrentUser) KeyURI() (string, bool) { return u.URI(), true }

func (u *CurrentUser) ReadOnly() {}

// Keys fetches the key pair by public key.
func (u *CurrentUser) Keys(ctx context.Context, c *Client) (*UserKeys, error) {
	if u.PublicKey == "" {
		return nil, fmt.Errorf("%w: current user has no public key", ErrNoID)
	}
	keys := &UserKeys{}
	if err := c.Get(ctx, fmt.Sprintf("userkey/%s/keys.json", u.PublicKey), nil, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Signature returns the server-side signature information of the current
// session.
func (u *CurrentUser) Signature(ctx context.Context, c *Client) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.Get(ctx, "signature.json", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserCollection lists users. With Admin and a project filter only the
// project managers are listed.
type UserCollection struct {
	*Collection[User]
	Admin     bool
	Online    *bool
	PublicKey string
}

func NewUserCollection() *UserCollection {
	uc := &UserCollection{Collection: NewCollection[User]("user", "", "project", "ontology")}
	uc.prepare = uc.applyQuery
	uc.rewrite = uc.adminURI
	return uc
}

func (uc *UserCollection) applyQuery() error {
	uc.SetParam("online", uc.Online)
	uc.SetParam("publicKey", uc.PublicKey)
	return nil
}

func (uc *UserCollection) adminURI(uri string, withoutFilters bool) string {
	if !uc.Admin || withoutFilters || !strings.HasPrefix(uri, "project/") {
		return uri
	}
	return strings.TrimSuffix(uri, "user.json") + "admin.json"
}

// Role is a security role managed by the server.
type Role struct {
	Resource
	Authority string `json:"authority,omitempty"`
}

func (r *Role) CallbackIdentifier() string { return "role" }

func (r *Role) URI() string { return resourceURI("role", r.ID) }

func (r *Role) ReadOnly() {}

func NewRoleCollection() *Collection[Role] {
	return NewCollection[Role]("role")
}

// UserRole grants a role to a user.
type UserRole struct {
	Resource
	User      int64  `json:"user,omitempty"`
	Role      int64  `json:"role,omitempty"`
	Authority string `json:"authority,omitempty"`
}

func (ur *UserRole) CallbackIdentifier() string { return "secusersecrole" }

// ResponseKey is the envelope key of older cores answering a role grant.
func (ur *UserRole) ResponseKey() string { return "userrole" }

func (ur *UserRole) URI() string {
	if ur.IsNew() {
		return fmt.Sprintf("user/%d/role.json", ur.User)
	}
	return ur.keyURI()
}

func (ur *UserRole) keyURI() string {
	return fmt.Sprintf("user/%d/role/%d.json", ur.User, ur.Role)
}

func (ur *UserRole) KeyURI() (string, bool) {
	return ur.keyURI(), ur.User != 0 && ur.Role != 0
}

func (ur *UserRole) NonUpdatable() {}

// NewUserRoleCollection lists the roles of a user, with the user filter.
func NewUserRoleCollection() *Collection[UserRole] {
	return NewCollection[UserRole]("role", "user")
}
