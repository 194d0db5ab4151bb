package auth

import "encoding/json"

// Stored permission sets travel as JSON arrays; the column is advisory (see
// Principal.StoredPermissions) so decode errors degrade to an empty set.
func encodePermissions(perms []Permission) []byte {
	if perms == nil {
		perms = []Permission{}
	}
	data, _ := json.Marshal(perms)
	return data
}

func decodePermissions(data []byte) []Permission {
	if len(data) == 0 {
		return nil
	}
	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return nil
	}
	return perms
}
