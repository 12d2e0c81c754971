package bus

import "github.com/google/uuid"

func genSessionID() string {
	return uuid.NewString()
}
