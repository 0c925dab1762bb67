// Package preflight provides readiness checks for the external tools and
// filesystem paths that vidscale depends on.
//
// These checks run in two contexts:
//   - The pipeline calls Require before touching the workspace. A missing
//     media tool or an unwritable directory fails the run with a
//     precondition error instead of leaving a half-reset workspace.
//   - The CLI "vidscale doctor" command calls RunAll and CheckSystemDeps to
//     display every check, including the optional ones.
package preflight
