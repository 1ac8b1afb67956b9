package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"minilink/internal/feed"
	"minilink/internal/notifications"
	"minilink/internal/profile"
	"minilink/internal/session"
)

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := a.flags("register")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *name == "" || *email == "" || *password == "" {
		return fmt.Errorf("%w: register needs -name, -email and -password", ErrUsage)
	}

	st, err := a.client.Register(ctx, *name, *email, *password)
	if err != nil {
		return err
	}
	return a.signIn(ctx, st)
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("%w: login needs -email and -password", ErrUsage)
	}

	st, err := a.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return a.signIn(ctx, st)
}

func (a *App) signIn(ctx context.Context, st session.State) error {
	if err := a.session.Login(ctx, st); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", st.Name, st.Email)
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	st, err := a.session.Current(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s> (id %s)\n", st.Name, st.Email, st.UserID)
	return nil
}

func (a *App) showFeed(ctx context.Context) error {
	views, err := a.feed.Refresh(ctx)
	if err != nil {
		if len(views) == 0 {
			return err
		}
		fmt.Fprintf(a.out, "Could not refresh (%v); showing the last loaded feed\n", err)
	}
	if len(views) == 0 {
		fmt.Fprintln(a.out, "No posts yet")
		return nil
	}
	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		a.printPost(v)
	}
	return nil
}

func (a *App) printPost(v feed.ViewPost) {
	mine := ""
	if v.Mine {
		mine = " (you)"
	}
	fmt.Fprintf(a.out, "[%s] %s %s%s · %s · avatar %s\n",
		v.ID, feed.Initial(v.AuthorName), v.AuthorName, mine,
		v.CreatedAt.Local().Format("2006-01-02 15:04"), v.AvatarColor)
	fmt.Fprintf(a.out, "  %s\n", v.Content)

	liked := ""
	if v.LikedByMe {
		liked = ", liked by you"
	}
	fmt.Fprintf(a.out, "  %d likes%s · %d comments\n", v.LikeCount, liked, len(v.Comments))
	if v.CommentsVisible {
		a.printComments(v.Comments)
	}
}

func (a *App) printComments(comments []string) {
	if len(comments) == 0 {
		fmt.Fprintln(a.out, "    no comments yet")
		return
	}
	for _, c := range comments {
		fmt.Fprintf(a.out, "    - %s\n", c)
	}
}

func (a *App) post(ctx context.Context, args []string) error {
	created, err := a.feed.Submit(ctx, strings.Join(args, " "))
	if created.ID == "" {
		return err
	}
	fmt.Fprintf(a.out, "Posted [%s]\n", created.ID)
	if err != nil {
		fmt.Fprintf(a.out, "The feed could not be refreshed: %v\n", err)
	}
	return nil
}

func postID(args []string, cmd string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: %s needs a post id", ErrUsage, cmd)
	}
	return args[0], nil
}

func (a *App) like(ctx context.Context, args []string) error {
	id, err := postID(args, "like")
	if err != nil {
		return err
	}
	entry, err := a.feed.ToggleLike(ctx, id)
	if err != nil {
		return err
	}
	verb := "Unliked"
	if entry.LikedByMe {
		verb = "Liked"
	}
	fmt.Fprintf(a.out, "%s [%s] · %d likes\n", verb, id, entry.LikeCount)
	return nil
}

func (a *App) comment(ctx context.Context, args []string) error {
	id, err := postID(args, "comment")
	if err != nil {
		return err
	}
	entry, err := a.feed.AddComment(ctx, id, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Commented on [%s] · %d comments\n", id, len(entry.Comments))
	return nil
}

func (a *App) toggleComments(ctx context.Context, args []string) error {
	id, err := postID(args, "comments")
	if err != nil {
		return err
	}
	if !a.feed.ToggleCommentsVisible(id) {
		fmt.Fprintf(a.out, "Comments of [%s] hidden\n", id)
		return nil
	}
	entry, err := a.feed.Entry(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Comments of [%s]:\n", id)
	a.printComments(entry.Comments)
	return nil
}

func (a *App) myPosts(ctx context.Context) error {
	mine, err := a.posts.List(ctx)
	if err != nil {
		return err
	}
	if len(mine) == 0 {
		fmt.Fprintln(a.out, "You have not posted from this device")
		return nil
	}
	for _, p := range mine {
		fmt.Fprintf(a.out, "[%s] %s\n", p.ID, p.Content)
	}
	return nil
}

func (a *App) remove(ctx context.Context, args []string) error {
	id, err := postID(args, "rm")
	if err != nil {
		return err
	}
	removed, err := a.posts.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(a.out, "No post [%s] on this device\n", id)
		return nil
	}
	fmt.Fprintf(a.out, "Removed [%s] from this device\n", id)
	return nil
}

func (a *App) profileCmd(ctx context.Context, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	st, err := a.session.Current(ctx)
	if err != nil {
		return err
	}

	switch sub {
	case "show":
		m, err := a.profile.Current(ctx, st)
		if err != nil {
			return err
		}
		a.printProfile(m)
		return nil
	case "set":
		return a.profileSet(ctx, st, args)
	case "image":
		return a.profileImage(ctx, st, args)
	}
	return fmt.Errorf("%w: unknown profile command %q", ErrUsage, sub)
}

func (a *App) profileSet(ctx context.Context, st *session.State, args []string) error {
	m, err := a.profile.Current(ctx, st)
	if err != nil {
		return err
	}

	fs := a.flags("profile set")
	fs.StringVar(&m.Name, "name", m.Name, "first name")
	fs.StringVar(&m.Surname, "surname", m.Surname, "surname")
	fs.StringVar(&m.Email, "email", m.Email, "contact email")
	fs.StringVar(&m.Phone, "phone", m.Phone, "phone number")
	fs.StringVar(&m.Description, "description", m.Description, "about you")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NFlag() == 0 {
		return fmt.Errorf("%w: profile set needs at least one field", ErrUsage)
	}

	if err := a.profile.Save(ctx, m); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile saved")
	return nil
}

func (a *App) profileImage(ctx context.Context, st *session.State, args []string) error {
	fs := a.flags("profile image")
	cover := fs.Bool("cover", false, "replace the cover image instead of the profile picture")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: profile image needs one file", ErrUsage)
	}

	blob, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	kind := profile.ImageProfile
	if *cover {
		kind = profile.ImageCover
	}
	if _, err := a.profile.AttachImage(ctx, kind, blob, st); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s image\n", kind)
	return nil
}

func (a *App) printProfile(m profile.Metadata) {
	field := func(label, v string) {
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(a.out, "%-13s %s\n", label+":", v)
	}
	field("Name", strings.TrimSpace(m.Name+" "+m.Surname))
	field("Email", m.Email)
	field("Phone", m.Phone)
	field("Description", m.Description)
	field("Avatar", describeImage(m.ProfileImage))
	field("Cover", describeImage(m.CoverImage))
}

func describeImage(url string) string {
	if url == "" {
		return ""
	}
	data, mediaType, err := profile.DecodeDataURL(url)
	if err != nil {
		return "unreadable"
	}
	return fmt.Sprintf("%s, %d bytes", mediaType, len(data))
}

var errNoRelay = errors.New("watch needs LOCAL_STORE_DRIVER=redis")

// watch prints events relayed from other processes until ctx ends.
func (a *App) watch(ctx context.Context) error {
	if a.relay == nil {
		return errNoRelay
	}
	cancel := a.bus.SubscribeAll(func(_ context.Context, ev notifications.Event) {
		if ev.Origin == "" {
			return
		}
		ids := ""
		if len(ev.IDs) > 0 {
			ids = " " + strings.Join(ev.IDs, ",")
		}
		fmt.Fprintf(a.out, "%s %s%s\n", ev.Topic, ev.Kind, ids)
	})
	defer cancel()

	fmt.Fprintln(a.out, "Watching for changes (Ctrl-C to stop)")
	<-ctx.Done()
	return nil
}
