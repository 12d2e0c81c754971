package runner

import (
	"strings"

	"github.com/google/uuid"
)

// genID mirrors the store package's own span/trace id scheme (prefix plus
// a uuid hex suffix) so runner-originated ids look indistinguishable from
// ids assigned elsewhere in the system.
func genID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
