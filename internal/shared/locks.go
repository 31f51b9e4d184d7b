package shared

import "fmt"

// DocumentLockKey builds redis keys guarding a single document's posting flow.
func DocumentLockKey(docType string, id int64) string {
	return fmt.Sprintf("backoffice:%s:%d:lock", docType, id)
}
