package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/models"
)

// Seeds a development user and OAuth client into a local SQLite database so
// the authorization code flow can be exercised without the developer portal.
func main() {
	dbPath := flag.String("db", "gather.sqlite", "SQLite database path")
	role := flag.String("role", "admin", "User role (admin or user)")
	public := flag.Bool("public", false, "Create a public client (PKCE required, no secret)")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.OAuthClient{}, &models.OAuthClientRecord{}); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	user := getOrCreateUser(db, *role)
	if user == nil {
		log.Fatal("Failed to get user for role:", *role)
	}

	clientID := fmt.Sprintf("dev-%s-client", *role)
	if *public {
		clientID = fmt.Sprintf("dev-%s-public-client", *role)
	}

	var existing models.OAuthClient
	if err := db.Where("id = ?", clientID).First(&existing).Error; err == nil {
		fmt.Printf("Development client %q already exists\n", clientID)
		return
	}

	client := models.OAuthClient{
		ID:          clientID,
		Name:        fmt.Sprintf("Development %s Client", *role),
		Domain:      "http://localhost",
		UserID:      user.ID,
		Scopes:      "user read:events read:groups read:badges",
		GrantTypes:  "authorization_code refresh_token",
		RedirectURI: "http://localhost:9000/callback",
	}

	var plainSecret string
	if *public {
		client.TokenEndpointAuthMethod = models.AuthMethodNone
	} else {
		client.TokenEndpointAuthMethod = models.AuthMethodClientPost
		secret, hash, err := auth.NewClientSecret()
		if err != nil {
			log.Fatal("Failed to generate client secret:", err)
		}
		plainSecret = secret
		client.Secret = hash
	}

	if err := db.Create(&client).Error; err != nil {
		log.Fatal("Failed to create client:", err)
	}

	name := client.Name
	ownerID := user.ID
	record := models.OAuthClientRecord{
		ClientID:     client.ID,
		Source:       models.ClientSourcePortal,
		OwnerID:      &ownerID,
		ClientName:   &name,
		RegisteredAt: time.Now(),
	}
	if err := db.Create(&record).Error; err != nil {
		log.Fatal("Failed to create client record:", err)
	}

	fmt.Printf("Development OAuth client created for role %q\n", *role)
	fmt.Printf("Client ID: %s\n", client.ID)
	if plainSecret != "" {
		fmt.Printf("Client Secret: %s\n", plainSecret)
	} else {
		fmt.Println("Public client: authenticate with PKCE, no secret")
	}
	fmt.Printf("Redirect URI: %s\n", client.RedirectURI)
}

// getOrCreateUser gets or creates a user with the specified role
func getOrCreateUser(db *gorm.DB, role string) *models.User {
	username := fmt.Sprintf("dev-%s", role)

	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err == nil {
		fmt.Printf("Found existing user: %s (ID: %d, Role: %s)\n", user.Username, user.ID, user.Role)
		return &user
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("devpassword"), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return nil
	}

	user = models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@gather.example", role),
		Name:         fmt.Sprintf("%s User", role),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Printf("Failed to create user: %v", err)
		return nil
	}

	fmt.Printf("Created new user: %s (ID: %d, Role: %s, Password: devpassword)\n", user.Username, user.ID, user.Role)
	return &user
}
