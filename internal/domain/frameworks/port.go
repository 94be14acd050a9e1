package frameworks

import "context"

// SystemRegistry port (read-only lookup of AI system metadata)
type SystemRegistry interface {
	System(ctx context.Context, tenant, id string) (*AISystem, error)
}

// Catalog port (read-only, versioned framework requirement catalogs)
type Catalog interface {
	Framework(id FrameworkID) (*Framework, error)
	Frameworks() []*Framework
}
