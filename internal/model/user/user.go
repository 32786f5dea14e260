package user

import "time"

type User struct {
	ID       int64
	Username string
	Email    string
	// Password holds the bcrypt hash, never the plain text.
	Password             string
	MaxStorageBytes      int64
	UsedStorageBytes     int64
	ReservedStorageBytes int64
	CreatedAt            time.Time
}

// UsedPercentage is used/max*100, 0 for a zero quota.
func (u *User) UsedPercentage() float64 {
	return UsedPercentage(u.UsedStorageBytes, u.MaxStorageBytes)
}

func UsedPercentage(used, max int64) float64 {
	if max <= 0 {
		return 0
	}
	return float64(used) * 100 / float64(max)
}
