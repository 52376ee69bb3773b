// Package adapters registers every built-in tool adapter.
package adapters

import (
	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/adapters/aiverify"
	"github.com/user/crosscheck/pkg/adapters/cbmc"
	"github.com/user/crosscheck/pkg/adapters/codeql"
	"github.com/user/crosscheck/pkg/adapters/gitleaks"
	"github.com/user/crosscheck/pkg/adapters/goast"
	"github.com/user/crosscheck/pkg/adapters/gosec"
	"github.com/user/crosscheck/pkg/adapters/sarifimport"
	"github.com/user/crosscheck/pkg/adapters/semgrep"
	"github.com/user/crosscheck/pkg/adapters/sonarqube"
)

// Register adds the built-in adapters to r.
func Register(r *adapter.Registry) {
	r.Register(aiverify.Name, aiverify.New)
	r.Register(cbmc.Name, cbmc.New)
	r.Register(codeql.Name, codeql.New)
	r.Register(gitleaks.Name, gitleaks.New)
	r.Register(goast.Name, goast.New)
	r.Register(gosec.Name, gosec.New)
	r.Register(sarifimport.Name, sarifimport.New)
	r.Register(semgrep.Name, semgrep.New)
	r.Register(sonarqube.Name, sonarqube.New)
}

// Default returns a registry holding the built-in adapters.
func Default() *adapter.Registry {
	r := adapter.NewRegistry()
	Register(r)
	return r
}
