package domain

import "strings"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// AdminIdentity - единая identity для всех консолей администраторов
const AdminIdentity = "admin"

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// NormalizeIdentity приводит email клиента к ключу беседы.
// Вкладки и сессии различаются по connection id, а не по identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// NormalizeIdentities нормализует список, убирая пустые значения и дубликаты с сохранением порядка
func NormalizeIdentities(identities []string) []string {
	seen := make(map[string]struct{}, len(identities))
	result := make([]string, 0, len(identities))
	for _, raw := range identities {
		id := NormalizeIdentity(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// Principal - проверенный владелец токена
type Principal struct {
	Identity string
	Role     Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
