package cmd

import (
	"fmt"
	"io"

	"github.com/jmcleod/ironsession/session"
)

func printIntent(w io.Writer, intent session.Intent) {
	if intent == session.IntentNone {
		return
	}
	fmt.Fprintf(w, "next: %s\n", intent)
}

func printState(w io.Writer, st session.State) {
	if !st.IsAuthenticated() {
		fmt.Fprintln(w, "Not signed in.")
		return
	}
	fmt.Fprintf(w, "Signed in as %s <%s>\n", st.User.Name, st.User.Email)
	if st.SelectedProfile != nil {
		p := st.SelectedProfile
		fmt.Fprintf(w, "Profile: %s (%s at %s)\n", p.Name, p.Role, p.CompanyName)
	}
	switch st.Phase() {
	case session.ProfileSelectionPending:
		fmt.Fprintf(w, "Choose one of %d profiles with 'ironsession profiles select <id>'.\n", len(st.Profiles))
	case session.NoAccess:
		fmt.Fprintln(w, "No profiles are available to this account.")
	}
}
