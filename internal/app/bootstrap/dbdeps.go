// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	realtimefeature "github.com/dalemusser/groupdrop/internal/app/features/realtime"
	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/app/system/filestore"
	"github.com/dalemusser/groupdrop/internal/app/system/membership"
	"github.com/dalemusser/groupdrop/internal/app/system/ratelimit"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"github.com/dalemusser/groupdrop/internal/app/system/workers"
)

// DBDeps holds the backends and long-lived services of the app. All group
// state is in memory; Storage is the only external backend.
type DBDeps struct {
	Storage filestore.Store
	Groups  *groupstore.Store
	Hub     *broadcast.Hub
	Members *membership.Controller
	Uploads *reassembly.Reassembler

	// Owned by the lifecycle: started in Startup, stopped in Shutdown.
	Realtime      *realtimefeature.Handler
	Eviction      *workers.UploadEviction
	CreateLimiter *ratelimit.Limiter
}
