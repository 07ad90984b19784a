package password

import "golang.org/x/crypto/bcrypt"

// Hash 用 bcrypt 对明文密码做单向散列。
//
// cost 超出 bcrypt 允许范围时回退到 DefaultCost，保证配置写错也不会
// 生成弱散列或直接报错。
func Hash(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify 比较明文密码和已存储的散列。
func Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
