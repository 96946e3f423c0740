package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	goRBAC "github.com/MrEthical07/goRBAC"
	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/sod"
)

// permission index members join object and operation with a byte that
// cannot appear in either name.
const permSep = "|"

// Store implements [goRBAC.EntityStore] on Redis. Safe for concurrent
// use; every method is a small number of Redis round-trips with no
// client-side caching (the engine caches policy itself).
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps a Redis client under a key prefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "gorbac"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// LoadUser fetches a user with its role and admin-role assignments.
func (s *Store) LoadUser(ctx context.Context, id string) (goRBAC.User, error) {
	if id == "" {
		return goRBAC.User{}, goRBAC.ErrNotFound
	}
	fields, err := s.client.HGetAll(ctx, s.key("user", id)).Result()
	if err != nil {
		return goRBAC.User{}, unavailable(err)
	}
	if len(fields) == 0 {
		return goRBAC.User{}, goRBAC.ErrNotFound
	}

	user := goRBAC.User{
		ID:          id,
		Description: fields["desc"],
		OrgUnit:     fields["ou"],
	}
	if raw := fields["constraint"]; raw != "" {
		c, err := constraint.Decode(raw)
		if err != nil {
			return goRBAC.User{}, fmt.Errorf("user %s: %w", id, err)
		}
		user.Constraint = c
	}

	roles, err := s.client.HGetAll(ctx, s.key("user", id, "roles")).Result()
	if err != nil {
		return goRBAC.User{}, unavailable(err)
	}
	for role, raw := range roles {
		c, err := constraint.Decode(raw)
		if err != nil {
			return goRBAC.User{}, fmt.Errorf("user %s role %s: %w", id, role, err)
		}
		user.Roles = append(user.Roles, goRBAC.UserRole{
			UserID:     id,
			Role:       role,
			Constraint: c,
			RawData:    raw,
		})
	}

	adminRoles, err := s.client.HGetAll(ctx, s.key("user", id, "adminroles")).Result()
	if err != nil {
		return goRBAC.User{}, unavailable(err)
	}
	for role, raw := range adminRoles {
		c, err := constraint.Decode(raw)
		if err != nil {
			return goRBAC.User{}, fmt.Errorf("user %s admin role %s: %w", id, role, err)
		}
		user.AdminRoles = append(user.AdminRoles, goRBAC.UserAdminRole{
			UserID:     id,
			Role:       role,
			Constraint: c,
			RawData:    raw,
		})
	}
	return user, nil
}

// SaveUser writes the user entry and replaces its assignment hashes.
func (s *Store) SaveUser(ctx context.Context, u goRBAC.User) error {
	if u.ID == "" {
		return errors.New("user without id")
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key("user", u.ID),
		"desc", u.Description,
		"ou", u.OrgUnit,
		"constraint", constraint.Encode(u.Constraint),
	)
	pipe.Del(ctx, s.key("user", u.ID, "roles"), s.key("user", u.ID, "adminroles"))
	for _, ur := range u.Roles {
		pipe.HSet(ctx, s.key("user", u.ID, "roles"), ur.Role, rawAssignment(ur.Role, ur.Constraint, ur.RawData))
	}
	for _, ur := range u.AdminRoles {
		pipe.HSet(ctx, s.key("user", u.ID, "adminroles"), ur.Role, rawAssignment(ur.Role, ur.Constraint, ur.RawData))
	}
	pipe.SAdd(ctx, s.key("users"), u.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// LoadRole fetches one ordinary role with its parent set.
func (s *Store) LoadRole(ctx context.Context, name string) (goRBAC.Role, error) {
	return s.loadRole(ctx, "role", name)
}

// LoadRoles fetches every ordinary role.
func (s *Store) LoadRoles(ctx context.Context) ([]goRBAC.Role, error) {
	names, err := s.client.SMembers(ctx, s.key("roles")).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]goRBAC.Role, 0, len(names))
	for _, name := range names {
		role, err := s.loadRole(ctx, "role", name)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// SaveRole writes an ordinary role and its parent set.
func (s *Store) SaveRole(ctx context.Context, r goRBAC.Role) error {
	return s.saveRole(ctx, "role", "roles", r, nil, nil)
}

// LoadAdminRole fetches one administrative role with its pools.
func (s *Store) LoadAdminRole(ctx context.Context, name string) (goRBAC.AdminRole, error) {
	role, err := s.loadRole(ctx, "adminrole", name)
	if err != nil {
		return goRBAC.AdminRole{}, err
	}
	osu, err := s.client.SMembers(ctx, s.key("adminrole", name, "osu")).Result()
	if err != nil {
		return goRBAC.AdminRole{}, unavailable(err)
	}
	osp, err := s.client.SMembers(ctx, s.key("adminrole", name, "osp")).Result()
	if err != nil {
		return goRBAC.AdminRole{}, unavailable(err)
	}
	return goRBAC.AdminRole{Role: role, OSUPool: osu, OSPPool: osp}, nil
}

// LoadAdminRoles fetches every administrative role.
func (s *Store) LoadAdminRoles(ctx context.Context) ([]goRBAC.AdminRole, error) {
	names, err := s.client.SMembers(ctx, s.key("adminroles")).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]goRBAC.AdminRole, 0, len(names))
	for _, name := range names {
		role, err := s.LoadAdminRole(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// SaveAdminRole writes an administrative role, its parent set, and pools.
func (s *Store) SaveAdminRole(ctx context.Context, r goRBAC.AdminRole) error {
	return s.saveRole(ctx, "adminrole", "adminroles", r.Role, r.OSUPool, r.OSPPool)
}

// LoadPermission fetches one permission with its authorized role set.
func (s *Store) LoadPermission(ctx context.Context, object, operation string) (goRBAC.Permission, error) {
	fields, err := s.client.HGetAll(ctx, s.key("perm", object, operation)).Result()
	if err != nil {
		return goRBAC.Permission{}, unavailable(err)
	}
	if len(fields) == 0 {
		return goRBAC.Permission{}, goRBAC.ErrNotFound
	}
	roles, err := s.client.SMembers(ctx, s.key("perm", object, operation, "roles")).Result()
	if err != nil {
		return goRBAC.Permission{}, unavailable(err)
	}
	return goRBAC.Permission{
		Object:    object,
		Operation: operation,
		OrgUnit:   fields["ou"],
		Roles:     roles,
	}, nil
}

// LoadPermissions fetches every permission.
func (s *Store) LoadPermissions(ctx context.Context) ([]goRBAC.Permission, error) {
	members, err := s.client.SMembers(ctx, s.key("perms")).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]goRBAC.Permission, 0, len(members))
	for _, member := range members {
		object, operation, ok := strings.Cut(member, permSep)
		if !ok {
			return nil, fmt.Errorf("malformed permission index member %q", member)
		}
		perm, err := s.LoadPermission(ctx, object, operation)
		if err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, nil
}

// SavePermission writes a permission entry and replaces its role set.
func (s *Store) SavePermission(ctx context.Context, p goRBAC.Permission) error {
	if p.Object == "" || p.Operation == "" {
		return errors.New("permission without object or operation")
	}
	if strings.Contains(p.Object, permSep) {
		return fmt.Errorf("object name cannot contain %q", permSep)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key("perm", p.Object, p.Operation), "ou", p.OrgUnit)
	pipe.Del(ctx, s.key("perm", p.Object, p.Operation, "roles"))
	for _, role := range p.Roles {
		pipe.SAdd(ctx, s.key("perm", p.Object, p.Operation, "roles"), role)
	}
	pipe.SAdd(ctx, s.key("perms"), p.Object+permSep+p.Operation)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// LoadSSDSets fetches the static separation-of-duty collection.
func (s *Store) LoadSSDSets(ctx context.Context) ([]sod.Set, error) {
	return s.loadSodSets(ctx, "ssd", sod.Static)
}

// LoadDSDSets fetches the dynamic separation-of-duty collection.
func (s *Store) LoadDSDSets(ctx context.Context) ([]sod.Set, error) {
	return s.loadSodSets(ctx, "dsd", sod.Dynamic)
}

// SaveSodSet writes one separation-of-duty set into the collection its
// kind selects.
func (s *Store) SaveSodSet(ctx context.Context, set sod.Set) error {
	if set.Name == "" {
		return errors.New("sod set without name")
	}
	kind := "ssd"
	if set.Kind == sod.Dynamic {
		kind = "dsd"
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(kind, set.Name), "cardinality", set.Cardinality)
	pipe.Del(ctx, s.key(kind, set.Name, "members"))
	for _, m := range set.Members {
		pipe.SAdd(ctx, s.key(kind, set.Name, "members"), m)
	}
	pipe.SAdd(ctx, s.key(kind+"sets"), set.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// LoadOrgUnits fetches one org-unit tree.
func (s *Store) LoadOrgUnits(ctx context.Context, t goRBAC.OrgUnitType) ([]goRBAC.OrgUnit, error) {
	names, err := s.client.SMembers(ctx, s.key("ou", t.String())).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]goRBAC.OrgUnit, 0, len(names))
	for _, name := range names {
		fields, err := s.client.HGetAll(ctx, s.key("ou", t.String(), name)).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		parents, err := s.client.SMembers(ctx, s.key("ou", t.String(), name, "parents")).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, goRBAC.OrgUnit{
			Name:        name,
			Type:        t,
			Description: fields["desc"],
			Parents:     parents,
		})
	}
	return out, nil
}

// SaveOrgUnit writes one org-unit node into its tree.
func (s *Store) SaveOrgUnit(ctx context.Context, ou goRBAC.OrgUnit) error {
	if ou.Name == "" {
		return errors.New("org unit without name")
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key("ou", ou.Type.String(), ou.Name), "desc", ou.Description)
	pipe.Del(ctx, s.key("ou", ou.Type.String(), ou.Name, "parents"))
	for _, p := range ou.Parents {
		pipe.SAdd(ctx, s.key("ou", ou.Type.String(), ou.Name, "parents"), p)
	}
	pipe.SAdd(ctx, s.key("ou", ou.Type.String()), ou.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// SaveRoleEdge records parent above child in the chosen graph's parent
// sets. The engine has already validated acyclicity.
func (s *Store) SaveRoleEdge(ctx context.Context, parent, child string, admin bool) error {
	kind := "role"
	if admin {
		kind = "adminrole"
	}
	if err := s.client.SAdd(ctx, s.key(kind, child, "parents"), parent).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteRoleEdge removes parent from child's parent set.
func (s *Store) DeleteRoleEdge(ctx context.Context, parent, child string, admin bool) error {
	kind := "role"
	if admin {
		kind = "adminrole"
	}
	if err := s.client.SRem(ctx, s.key(kind, child, "parents"), parent).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SaveAssignment writes a user-role assignment, preserving the raw form
// when the caller round-trips one.
func (s *Store) SaveAssignment(ctx context.Context, ur goRBAC.UserRole) error {
	exists, err := s.client.Exists(ctx, s.key("user", ur.UserID)).Result()
	if err != nil {
		return unavailable(err)
	}
	if exists == 0 {
		return goRBAC.ErrNotFound
	}
	raw := rawAssignment(ur.Role, ur.Constraint, ur.RawData)
	if err := s.client.HSet(ctx, s.key("user", ur.UserID, "roles"), ur.Role, raw).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteAssignment removes a user-role assignment. A missing assignment
// maps to ErrNotFound.
func (s *Store) DeleteAssignment(ctx context.Context, userID, role string) error {
	removed, err := s.client.HDel(ctx, s.key("user", userID, "roles"), role).Result()
	if err != nil {
		return unavailable(err)
	}
	if removed == 0 {
		return goRBAC.ErrNotFound
	}
	return nil
}

// SaveGrant authorizes a role for a permission.
func (s *Store) SaveGrant(ctx context.Context, object, operation, role string) error {
	exists, err := s.client.Exists(ctx, s.key("perm", object, operation)).Result()
	if err != nil {
		return unavailable(err)
	}
	if exists == 0 {
		return goRBAC.ErrNotFound
	}
	if err := s.client.SAdd(ctx, s.key("perm", object, operation, "roles"), role).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteGrant removes a role from a permission's authorized set.
func (s *Store) DeleteGrant(ctx context.Context, object, operation, role string) error {
	if err := s.client.SRem(ctx, s.key("perm", object, operation, "roles"), role).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) loadRole(ctx context.Context, kind, name string) (goRBAC.Role, error) {
	fields, err := s.client.HGetAll(ctx, s.key(kind, name)).Result()
	if err != nil {
		return goRBAC.Role{}, unavailable(err)
	}
	if len(fields) == 0 {
		return goRBAC.Role{}, goRBAC.ErrNotFound
	}
	parents, err := s.client.SMembers(ctx, s.key(kind, name, "parents")).Result()
	if err != nil {
		return goRBAC.Role{}, unavailable(err)
	}

	role := goRBAC.Role{
		Name:        name,
		Description: fields["desc"],
		Parents:     parents,
	}
	if raw := fields["constraint"]; raw != "" {
		c, err := constraint.Decode(raw)
		if err != nil {
			return goRBAC.Role{}, fmt.Errorf("%s %s: %w", kind, name, err)
		}
		role.Constraint = c
	}
	return role, nil
}

func (s *Store) saveRole(ctx context.Context, kind, index string, r goRBAC.Role, osu, osp []string) error {
	if r.Name == "" {
		return errors.New("role without name")
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(kind, r.Name),
		"desc", r.Description,
		"constraint", constraint.Encode(r.Constraint),
	)
	pipe.Del(ctx, s.key(kind, r.Name, "parents"))
	for _, p := range r.Parents {
		pipe.SAdd(ctx, s.key(kind, r.Name, "parents"), p)
	}
	if kind == "adminrole" {
		pipe.Del(ctx, s.key(kind, r.Name, "osu"), s.key(kind, r.Name, "osp"))
		for _, u := range osu {
			pipe.SAdd(ctx, s.key(kind, r.Name, "osu"), u)
		}
		for _, u := range osp {
			pipe.SAdd(ctx, s.key(kind, r.Name, "osp"), u)
		}
	}
	pipe.SAdd(ctx, s.key(index), r.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) loadSodSets(ctx context.Context, kind string, k sod.Kind) ([]sod.Set, error) {
	names, err := s.client.SMembers(ctx, s.key(kind+"sets")).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]sod.Set, 0, len(names))
	for _, name := range names {
		card, err := s.client.HGet(ctx, s.key(kind, name), "cardinality").Result()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s set %s: %w", kind, name, goRBAC.ErrNotFound)
		}
		if err != nil {
			return nil, unavailable(err)
		}
		n, err := strconv.Atoi(card)
		if err != nil {
			return nil, fmt.Errorf("%s set %s: bad cardinality %q", kind, name, card)
		}
		members, err := s.client.SMembers(ctx, s.key(kind, name, "members")).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, sod.Set{
			Name:        name,
			Kind:        k,
			Members:     members,
			Cardinality: n,
		})
	}
	return out, nil
}

// rawAssignment prefers a round-tripped raw string over re-encoding, so
// fields this implementation does not model survive untouched.
func rawAssignment(role string, c constraint.Constraint, raw string) string {
	if raw != "" {
		return raw
	}
	if c.Name == "" {
		c.Name = role
	}
	return constraint.Encode(c)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", goRBAC.ErrStoreUnavailable, err)
}
