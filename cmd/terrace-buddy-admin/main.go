package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/notify"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
)

// A very simple CLI tool for the administration of terrace-buddy users, communities and notifications.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

// readDefinition reads a JSON definition from the argument, or from STDIN if the argument is "-".
func readDefinition(arg string, v interface{}) error {
	var r io.Reader
	if arg == "-" {
		r = os.Stdin
	} else {
		r = bytes.NewReader([]byte(arg))
	}
	return json.NewDecoder(r).Decode(v)
}

func printJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal", "error", err)
		return
	}
	fmt.Println(string(b))
}

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	// the sub command flags are parsed by cobra
	pflag.CommandLine.ParseErrorsWhitelist.UnknownFlags = true

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	// the server holds the lock on a buntdb file, so this is meant to be used while it is stopped (or with a
	// sql backend)
	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show users, communities, messages or notifications",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Show: " + strings.Join(args, " "))
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `shows a listing of all available users.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := persister.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	var cmdShowCommunities = &cobra.Command{
		Use:   "communities",
		Short: "Show communities",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			communities, err := persister.GetCommunities()
			if err != nil {
				globals.AppLogger.Error("could not get communities", "error", err)
				return
			}
			printJSON(communities)
		},
	}
	var cmdShowCommunity = &cobra.Command{
		Use:   "community [community id]",
		Short: "Show community",
		Long:  `show community prints the community with the given id and the ids of its members.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			community := types.Community{Id: args[0]}
			err := persister.GetCommunity(&community)
			if err != nil {
				globals.AppLogger.Error("could not get community", "error", err)
				return
			}
			members, err := persister.GetMembers(community.Id)
			if err != nil {
				globals.AppLogger.Error("could not get members", "error", err)
				return
			}
			printJSON(struct {
				types.Community
				Members []string `json:"members"`
			}{community, members})
		},
	}
	var limit int
	var cmdShowChannel = &cobra.Command{
		Use:   "channel [community id] [channel id]",
		Short: "Show the latest messages of a channel",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			msgs, err := persister.GetChannelHistory(args[0], args[1], time.Time{}, limit)
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			printJSON(msgs)
		},
	}
	cmdShowChannel.Flags().IntVarP(&limit, "limit", "n", 50, "number of messages")
	var cmdShowNotifications = &cobra.Command{
		Use:   "notifications [user id]",
		Short: "Show the latest notifications of a user",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			notifications, err := persister.GetNotifications(args[0], limit)
			if err != nil {
				globals.AppLogger.Error("could not get notifications", "error", err)
				return
			}
			printJSON(notifications)
		},
	}
	cmdShowNotifications.Flags().IntVarP(&limit, "limit", "n", 50, "number of notifications")

	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update user or community",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Set: " + strings.Join(args, " "))
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{}
			err := readDefinition(args[0], &user)
			if err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if user.Id == "" {
				globals.AppLogger.Error("no user id")
				return
			}
			if user.Role == "" {
				user.Role = types.RoleUser
			}
			err = persister.StoreUser(user)
			if err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	var cmdSetCommunity = &cobra.Command{
		Use:   "community [community definition]",
		Short: "Set community",
		Long: `set community creates or updates a community. If the community definition is "-", it is read from STDIN.
The admin is added as a member.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			community := types.Community{}
			err := readDefinition(args[0], &community)
			if err != nil {
				globals.AppLogger.Error("could not decode community", "error", err)
				return
			}
			if community.Id == "" {
				globals.AppLogger.Error("no community id")
				return
			}
			if community.Visibility == "" {
				community.Visibility = types.VisibilityPublic
			}
			if community.Visibility != types.VisibilityPublic && community.Visibility != types.VisibilityPrivate {
				globals.AppLogger.Error("invalid visibility", "visibility", community.Visibility)
				return
			}
			if community.AdminId == "" {
				globals.AppLogger.Warn("no admin set")
			}
			err = persister.StoreCommunity(community)
			if err != nil {
				globals.AppLogger.Error("could not store community", "error", err)
				return
			}
			if community.AdminId != "" {
				err = persister.AddMember(community.Id, community.AdminId)
				if err != nil {
					globals.AppLogger.Error("could not add admin as member", "error", err)
				}
			}
		},
	}

	var cmdMember = &cobra.Command{
		Use:   "member",
		Short: "add or remove community members",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Member: " + strings.Join(args, " "))
		},
	}
	var cmdMemberAdd = &cobra.Command{
		Use:   "add [community id] [user id]",
		Short: "Add a member",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			community := types.Community{Id: args[0]}
			err := persister.GetCommunity(&community)
			if err != nil {
				globals.AppLogger.Error("could not get community", "error", err)
				return
			}
			err = persister.AddMember(args[0], args[1])
			if err != nil {
				globals.AppLogger.Error("could not add member", "error", err)
			}
		},
	}
	var cmdMemberRemove = &cobra.Command{
		Use:   "remove [community id] [user id]",
		Short: "Remove a member",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			err := persister.RemoveMember(args[0], args[1])
			if err != nil {
				globals.AppLogger.Error("could not remove member", "error", err)
			}
		},
	}

	var cmdNotify = &cobra.Command{
		Use:   "notify [user id] [notification definition]",
		Short: "Store a notification for a user",
		Long: `notify stores a notification for the user. It is delivered with the next notification listing, live
delivery is only done by the server. If the definition is "-", it is read from STDIN.`,
		Args: cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			n := types.Notification{}
			err := readDefinition(args[1], &n)
			if err != nil {
				globals.AppLogger.Error("could not decode notification", "error", err)
				return
			}
			stored, err := notify.NewDispatcher(persister, nil).Dispatch(args[0], &n)
			if err != nil {
				globals.AppLogger.Error("could not dispatch notification", "error", err)
				return
			}
			printJSON(stored)
		},
	}

	var cmdPurge = &cobra.Command{
		Use:   "purge-notifications",
		Short: "Delete read notifications older than the retention period",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			retention, err := notify.NewRetention(persister, globalConfig.NotificationsConfig.Retention, globalConfig.NotificationsConfig.RetentionCron)
			if err != nil {
				globals.AppLogger.Error("invalid retention schedule", "error", err)
				return
			}
			n, err := retention.Purge()
			if err != nil {
				return
			}
			fmt.Println(n)
		},
	}

	var cmdToken = &cobra.Command{
		Use:   "token [user id]",
		Short: "Issue an access token",
		Long:  `token issues a HS256 access token for the stored user with the given id, signed with the configured secret.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if globalConfig.AuthConfig.JWTSecret == "" {
				globals.AppLogger.Error("no jwt secret configured")
				return
			}
			user := types.User{Id: args[0]}
			err := persister.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			verifier := auth.NewJWTVerifier(globalConfig.AuthConfig.JWTSecret, globalConfig.AuthConfig.JWTIssuer, globalConfig.AuthConfig.TokenTTL)
			token, err := verifier.Issue(user)
			if err != nil {
				globals.AppLogger.Error("could not issue token", "error", err)
				return
			}
			fmt.Println(token)
		},
	}

	var rootCmd = &cobra.Command{Use: "terrace-buddy-admin"}
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.AddCommand(cmdShow, cmdSet, cmdMember, cmdNotify, cmdPurge, cmdToken)
	cmdShow.AddCommand(cmdShowUsers, cmdShowUser, cmdShowCommunities, cmdShowCommunity, cmdShowChannel, cmdShowNotifications)
	cmdSet.AddCommand(cmdSetUser, cmdSetCommunity)
	cmdMember.AddCommand(cmdMemberAdd, cmdMemberRemove)
	rootCmd.Execute()
}
