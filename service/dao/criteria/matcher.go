package criteria

import (
	"github.com/viant/fluxgate/service/dao"
)

// ParamStatus names the run status filter parameter.
const ParamStatus = "Status"

// FilterByStatus reports whether a record with status matches the status
// parameters; records always match when no status parameter is given.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != ParamStatus {
			continue
		}
		for _, candidate := range parameter.Values() {
			if status == candidate {
				return true
			}
		}
		return false
	}
	return true
}
