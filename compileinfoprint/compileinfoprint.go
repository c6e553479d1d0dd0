// compileinfoprint is imported by binaries for the side effect of printing the
// compileinfo, including numerical module versions, to os.Stderr before main
// runs.
package compileinfoprint

import "github.com/carbocation/genescore/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
