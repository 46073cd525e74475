package realtime

// Paths of the user tree.

const UsersPath = "users"

func UserPath(id string) string {
	return UsersPath + "/" + id
}

func FriendsPath(id string) string {
	return UserPath(id) + "/friends"
}

func RecentUsersPath(id string) string {
	return UserPath(id) + "/recentUsers"
}
